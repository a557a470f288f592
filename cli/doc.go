// Package cli implements the lqctl command line tool.
package cli
