package uds

import (
	"context"
	"io"
)

// CmdHnd is one admin command. Fn writes its output to w; a returned error is
// reported to the client as "error: ..." instead. ctx ends with the command timeout.
type CmdHnd struct {
	Desc  string
	Usage string
	Fn    func(ctx context.Context, args []string, w io.Writer) error
}
