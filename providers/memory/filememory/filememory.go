package filememory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/observability"
)

const (
	backendName      = "file"
	defaultExtension = "msgpack"
	lockStripes      = 64
)

// FileMemory implements [memory.Store] with one file per conversation under
// a root directory. Every Append rewrites the whole file through a temporary
// file and a rename, so readers observe either the old or the new history.
//
// Appends to the same conversation are serialized inside one process by a
// striped mutex. Separate processes sharing the directory must coordinate
// themselves.
type FileMemory struct {
	dir       string
	extension string
	fileMode  fs.FileMode
	logger    *slog.Logger
	locks     [lockStripes]sync.Mutex
}

// Compile-time check: FileMemory must implement memory.Store.
var _ memory.Store = (*FileMemory)(nil)

// Option configures optional FileMemory behavior.
type Option func(*FileMemory)

// WithExtension overrides the file extension ("msgpack"). A leading dot is
// ignored.
func WithExtension(extension string) Option {
	return func(m *FileMemory) {
		if extension = strings.TrimPrefix(extension, "."); extension != "" {
			m.extension = extension
		}
	}
}

// WithFileMode sets the permission bits of history files (default 0600).
func WithFileMode(mode fs.FileMode) Option {
	return func(m *FileMemory) {
		m.fileMode = mode
	}
}

// WithLogger sets the logger used for non-fatal cleanup failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *FileMemory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New returns a file-backed store rooted at dir, creating the directory if
// needed.
func New(dir string, opts ...Option) (*FileMemory, error) {
	if dir == "" {
		return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: errors.New("empty directory")}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: err}
	}

	fileMemory := &FileMemory{
		dir:       dir,
		extension: defaultExtension,
		fileMode:  0o600,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(fileMemory)
	}
	return fileMemory, nil
}

// Dir returns the root directory of the store.
func (m *FileMemory) Dir() string {
	return m.dir
}

// Append reads the current history, appends messages and atomically replaces
// the file. An empty slice leaves the file untouched.
func (m *FileMemory) Append(ctx context.Context, conversationID string, messages []ai.Message) error {
	path, err := m.path(conversationID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID, Err: err}
	}

	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	history, err := m.read(path)
	if err != nil {
		return m.wrapReadError("append", conversationID, err)
	}
	history = append(history, messages...)

	payload, err := codec.EncodeList(history)
	if err != nil {
		return err
	}
	if err := m.writeAtomic(path, payload); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryAppend,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
		observability.Int(observability.AttrMemoryBytes, len(payload)),
	)
	return nil
}

// Get decodes the conversation file. A missing file is an empty history.
func (m *FileMemory) Get(ctx context.Context, conversationID string) ([]ai.Message, error) {
	path, err := m.path(conversationID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
	}

	history, err := m.read(path)
	if err != nil {
		return nil, m.wrapReadError("get", conversationID, err)
	}

	observability.AddEvent(ctx, observability.EventMemoryGet,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(history)),
	)
	return history, nil
}

// Clear deletes the conversation file. A missing file is not an error.
func (m *FileMemory) Clear(ctx context.Context, conversationID string) error {
	path, err := m.path(conversationID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "clear", ConversationID: conversationID, Err: err}
	}

	lock := m.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &memory.StorageError{Backend: backendName, Op: "clear", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryClear,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
	)
	return nil
}

// path maps a conversation ID to its file, rejecting IDs that would escape
// the root directory.
func (m *FileMemory) path(conversationID string) (string, error) {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return "", err
	}
	if conversationID == "." || conversationID == ".." ||
		strings.ContainsAny(conversationID, `/\`+"\x00") ||
		strings.ContainsRune(conversationID, os.PathSeparator) {
		return "", fmt.Errorf("%w: %q is not a valid file name", memory.ErrInvalidConversationID, conversationID)
	}
	return filepath.Join(m.dir, conversationID+"."+m.extension), nil
}

func (m *FileMemory) lockFor(conversationID string) *sync.Mutex {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(conversationID))
	return &m.locks[hash.Sum32()%lockStripes]
}

// read returns the decoded history, or an empty slice when the file does
// not exist.
func (m *FileMemory) read(path string) ([]ai.Message, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ai.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return codec.DecodeList(data)
}

// wrapReadError keeps codec failures as they are and wraps I/O failures.
func (m *FileMemory) wrapReadError(op, conversationID string, err error) error {
	var codecErr *codec.Error
	if errors.As(err, &codecErr) {
		return fmt.Errorf("file memory: %s %q: %w", op, conversationID, err)
	}
	return &memory.StorageError{Backend: backendName, Op: op, ConversationID: conversationID, Err: err}
}

// writeAtomic writes payload to a temp file in the target directory, syncs
// it and renames it over path.
func (m *FileMemory) writeAtomic(path string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(m.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			if removeErr := os.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
				m.logger.Warn("filememory: failed to remove temp file", "path", tmpName, "error", removeErr)
			}
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, m.fileMode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
