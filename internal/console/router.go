package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"embark/internal/events"
)

const (
	resolvedByPlugin  = "plugin"
	resolvedByBuiltin = "builtin"
	resolvedByEval    = "eval"
	resolvedByIPC     = "ipc"
)

const deprecationWarning = "[DEPRECATED] In future versions of embark, we expect the console command to return an object " +
	"having 2 functions: match and process. Register the command with console.MatchProcess instead of console.Legacy."

var errEmptyDispatcher = errors.New("dispatcher bus is nil")

// Router является точкой входа консоли. Порядок: плагины, затем встроенные команды, затем исполнитель кода,
// при отсутствии локального исполнителя команда пересылается по IPC.
type Router struct {
	d        Dispatcher
	builtins *Builtins
	tracer   trace.Tracer
	warnOnce sync.Once
}

// NewRouter создает маршрутизатор команд.
func NewRouter(d Dispatcher, builtins *Builtins) *Router {
	if builtins == nil {
		builtins = NewBuiltins("", nil)
	}
	return &Router{
		d:        d,
		builtins: builtins,
		tracer:   otel.Tracer("embark/internal/console"),
	}
}

// Execute выполняет команду. Ошибка плагина или исполнителя возвращается как есть;
// паника в обработчике плагина не перехватывается.
func (r *Router) Execute(ctx context.Context, cmd string) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "console.execute")
	defer span.End()

	res, by, err := r.resolve(ctx, cmd)
	span.SetAttributes(attribute.String("console.resolved_by", by))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	return res, nil
}

func (r *Router) resolve(ctx context.Context, cmd string) (Result, string, error) {
	if r.d.Plugins != nil {
		for _, h := range r.d.Plugins.ConsoleHandlers() {
			switch h.kind {
			case kindLegacy:
				out, ok := h.callLegacy(cmd)
				if !ok {
					continue
				}
				r.warnOnce.Do(func() { r.d.logger().Warn(deprecationWarning) })
				return Result{Output: out}, resolvedByPlugin, nil
			case kindMatchProcess:
				if !h.matcher.Match(cmd) {
					continue
				}
				out, err := h.matcher.Process(ctx, cmd)
				if err != nil {
					return Result{}, resolvedByPlugin, err
				}
				return Result{Output: out}, resolvedByPlugin, nil
			}
		}
	}

	if res, ok := r.builtins.Process(cmd); ok {
		return res, resolvedByBuiltin, nil
	}
	return r.evaluate(ctx, cmd)
}

func (r *Router) evaluate(ctx context.Context, cmd string) (Result, string, error) {
	if r.d.Bus == nil {
		return Result{}, resolvedByEval, errEmptyDispatcher
	}
	out, err := r.d.Bus.Request(ctx, events.TopicEval, cmd)
	if err == nil {
		return Result{Output: stringify(out)}, resolvedByEval, nil
	}
	if !r.shouldForward(err) {
		return Result{}, resolvedByEval, err
	}

	reply, err := r.d.IPC.Request(ctx, events.TopicExecuteCmd, cmd)
	if err != nil {
		return Result{}, resolvedByIPC, err
	}
	return Result{Output: reply.Payload, Exit: reply.Terminal}, resolvedByIPC, nil
}

// shouldForward задает политику повтора. По IPC уходит только команда, для которой
// в процессе нет исполнителя, и только если процесс является подключенным клиентом.
func (r *Router) shouldForward(err error) bool {
	if !errors.Is(err, events.ErrNoHandler) || r.d.IPC == nil {
		return false
	}
	return r.d.IPC.Connected() && r.d.IPC.IsClient()
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
