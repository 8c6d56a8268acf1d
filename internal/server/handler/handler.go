package handler

import (
	"gantry/internal/server/channel"
	"gantry/internal/server/engine"
	"gantry/internal/server/executor"
)

var (
	eng  *engine.Engine
	exec *executor.Executor
	ch   channel.Channel
)

// Init wires the handlers to the engine, executor and channel built in
// main.
func Init(e *engine.Engine, x *executor.Executor, c channel.Channel) {
	eng = e
	exec = x
	ch = c
}
