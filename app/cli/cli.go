package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/alecthomas/kong"

	actx "go.hackfix.me/stash/app/context"
)

// CLI is the command line interface of stash.
type CLI struct {
	kong *kong.Kong

	Get     Get     `kong:"cmd,help='Print the value of a key.'"`
	Set     Set     `kong:"cmd,help='Set the value of a key.'"`
	Rm      Rm      `kong:"cmd,help='Remove a key.'"`
	Ls      Ls      `kong:"cmd,help='List keys.'"`
	Convert Convert `kong:"cmd,help='Copy the store into another backend or format.'"`

	Globals `kong:"embed"`

	Version kong.VersionFlag `kong:"help='Output version and exit.'"`
}

// Globals are the flags shared by all commands.
type Globals struct {
	DataDir       string `kong:"default='${dataDir}',help='Directory the store is kept in.'"`
	Name          string `kong:"default='stash',help='Name of the store.'"`
	Backend       string `kong:"enum='file,dir,badger,sqlite',default='file',help='Storage backend. One of: ${enum}.'"`
	Format        string `kong:"enum='gob,json,yaml,toml',default='json',help='Encoding of stored entries. One of: ${enum}.'"`
	Ext           string `kong:"help='Extension of store files. Defaults to bin for the file backend, and vnc for the dir backend.'"`
	Async         bool   `kong:"help='Write files in the background. Only supported by the file and dir backends.'"`
	EncryptionKey string `kong:"help='Hex-encoded 32 byte key used to encrypt stored entries.'"`
	LogLevel      string `kong:"enum='debug,info,warn,error',default='info',help='Minimum level of log messages. One of: ${enum}.'"`
	MetricsFile   string `kong:"help='Write store metrics to this file in the Prometheus text format on exit.'"`
}

// Setup the command-line interface.
func (c *CLI) Setup(appCtx *actx.Context, exit func(int)) error {
	var err error
	c.kong, err = kong.New(c,
		kong.Name("stash"),
		kong.Description("Manage a persistent key-value store."),
		kong.UsageOnError(),
		kong.DefaultEnvars("STASH"),
		kong.Resolvers(envResolver(appCtx.Env, "STASH")),
		kong.Vars{
			"dataDir": filepath.Join(xdg.DataHome, "stash"),
			"version": appCtx.Version,
		},
		kong.Writers(appCtx.Stdout, appCtx.Stderr),
		kong.Exit(exit),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed initializing CLI: %w", err)
	}

	return nil
}

// Execute parses args and runs the selected command.
func (c *CLI) Execute(appCtx *actx.Context, args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return err
	}

	if appCtx.LogLevel != nil {
		var lvl slog.Level
		if err = lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("invalid log level '%s': %w", c.LogLevel, err)
		}
		appCtx.LogLevel.Set(lvl)
	}

	return kctx.Run(appCtx, &c.Globals)
}

// envResolver reads flag values from the application environment, so that
// they can be set without touching the process environment.
func envResolver(env actx.Environment, prefix string) kong.ResolverFunc {
	return func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		if env == nil {
			return nil, nil
		}
		name := fmt.Sprintf("%s_%s", prefix,
			strings.ToUpper(strings.ReplaceAll(flag.Name, "-", "_")))
		if val := env.Get(name); val != "" {
			return val, nil
		}
		return nil, nil
	}
}
