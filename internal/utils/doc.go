// Package utils holds small helpers shared by the command line layer.
package utils
