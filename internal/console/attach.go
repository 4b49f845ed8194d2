package console

import (
	"context"
	"errors"
	"fmt"

	"embark/internal/events"
	"embark/internal/ipc"
)

var errBadCommand = errors.New("command must be a string")

// Attach регистрирует exec обработчиком console:executeCmd на шине, а для IPC-сервера
// и обработчиком входящих IPC-запросов той же темы.
func Attach(bus Bus, bridge Bridge, exec Executor) {
	bus.SetCommandHandler(events.TopicExecuteCmd, func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: %w", events.TopicExecuteCmd, errBadCommand)
		}
		cmd, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: %w", events.TopicExecuteCmd, errBadCommand)
		}
		res, err := exec.Execute(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	if bridge == nil || !bridge.IsServer() {
		return
	}
	bridge.On(events.TopicExecuteCmd, func(ctx context.Context, payload string) (ipc.Reply, error) {
		res, err := exec.Execute(ctx, payload)
		if err != nil {
			return ipc.Reply{}, err
		}
		return ipc.Reply{Payload: res.Output, Terminal: res.Exit}, nil
	})
}
