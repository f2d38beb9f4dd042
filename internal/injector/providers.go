// Package injector assembles the application graph with google/wire.
package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/events/bus"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/system"
	"github.com/zeusync/ruler/internal/hostlink"
	"github.com/zeusync/ruler/internal/ruler"
	"github.com/zeusync/ruler/internal/script"
)

// App is everything a command needs.
type App struct {
	Config   *config.Config
	Log      *log.Logger
	World    *system.World
	Tool     *ruler.Tool
	Hostlink *hostlink.Server
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	bus.New,
	system.NewWorld,
	ruler.NewTool,
	hostlink.NewServer,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg *config.Config) *log.Logger {
	return log.New(cfg.Level())
}

// Runner returns a scenario runner stepping the app's world at the
// configured frame rate.
func (a *App) Runner() *script.Runner {
	return script.NewRunner(a.World, a.Tool, a.Config.FrameDelta(), a.Log)
}

// Close releases the tool and flushes the logger.
func (a *App) Close() error {
	err := a.Tool.Close()
	_ = a.Log.Sync()
	return err
}
