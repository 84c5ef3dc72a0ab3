// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package main

import (
	"context"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/felipebarte/cnab/ingest"
	"github.com/felipebarte/cnab/persist"
	"github.com/felipebarte/cnab/swap"
	"github.com/felipebarte/cnab/webhook"
)

// CNABdConfig aggregates every component's config. The entry point owns
// the collaborators built from it; nothing else holds global state.
type CNABdConfig struct {
	LogLevel string         `koanf:"log-level"`
	DB       persist.Config `koanf:"db"`
	Swap     swap.Config    `koanf:"swap"`
	Webhook  webhook.Config `koanf:"webhook"`
	Ingest   ingest.Config  `koanf:"ingest"`
}

var CNABdConfigDefault = CNABdConfig{
	LogLevel: "info",
	DB:       persist.DefaultConfig,
	Swap:     swap.DefaultConfig,
	Webhook:  webhook.DefaultConfig,
	Ingest:   ingest.DefaultConfig,
}

func CNABdConfigAddOptions(f *pflag.FlagSet) {
	f.String("log-level", CNABdConfigDefault.LogLevel, "log level (trace, debug, info, warn, error)")
	persist.ConfigAddOptions("db", f)
	swap.ConfigAddOptions("swap", f)
	webhook.ConfigAddOptions("webhook", f)
	ingest.ConfigAddOptions("ingest", f)
}

// envAliases maps the deployment environment's flat names onto config
// keys that do not follow the mechanical PREFIX_KEY translation.
var envAliases = map[string]string{
	"COMPANY_CNPJ":     "swap.company-cnpj",
	"WEBHOOK_CNAB_URL": "webhook.url",
	"DATABASE_DSN":     "db.dsn",
	"DATABASE_URL":     "db.dsn",
}

// envTransform turns WEBHOOK_RETRY_ATTEMPTS into webhook.retry-attempts:
// the first underscore separates the component, the rest hyphenate.
func envTransform(s string) string {
	if alias, ok := envAliases[s]; ok {
		return alias
	}
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + strings.ReplaceAll(parts[1], "_", "-")
}

// ParseCNABd resolves the process config from flags and environment, flags
// winning. The second return carries the positional arguments left after
// flag parsing: the input file paths.
func ParseCNABd(_ context.Context, args []string) (*CNABdConfig, []string, error) {
	f := pflag.NewFlagSet("cnabd", pflag.ContinueOnError)
	CNABdConfigAddOptions(f)
	if err := f.Parse(args); err != nil {
		return nil, nil, err
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, nil, errors.Wrap(err, "loading environment config")
	}
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, nil, errors.Wrap(err, "loading flag config")
	}

	config := CNABdConfigDefault
	err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &config,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "decoding config")
	}
	return &config, f.Args(), nil
}
