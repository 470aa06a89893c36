package router

import "chatrelay/pkg/types"

// Router-specific errors
var (
	ErrUnknownCommand = types.NewError(types.KindValidation, "unknown command")
)
