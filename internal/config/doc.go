// Package config loads mmchat settings from the environment, with an
// optional .env file in the working directory.
package config
