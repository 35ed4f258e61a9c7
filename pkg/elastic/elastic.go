package elastic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

type Config struct {
	Addresses   string `split_words:"true"` // comma separated; empty disables the store
	Username    string `split_words:"true"`
	Password    string `split_words:"true"`
	PingTimeout int    `split_words:"true" default:"5"`
}

// Enabled reports whether any address is configured.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.Addresses) != ""
}

func (c *Config) New() (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: splitAddresses(c.Addresses),
	}
	if c.Username != "" {
		esCfg.Username = c.Username
		esCfg.Password = c.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.PingTimeout)*time.Second)
	defer cancel()
	res, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	return es, nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
