package app

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

// loadRequests reads a request file holding either one request mapping or a
// list of them.
func loadRequests(path string) ([]workflow.RequestParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}
	return parseRequests(raw)
}

func parseRequests(raw []byte) ([]workflow.RequestParams, error) {
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse request yaml: %w", err)
	}

	var configs []workflow.RequestConfig
	switch v := generic.(type) {
	case []interface{}:
		if err := decodeStrict(v, &configs); err != nil {
			return nil, err
		}
	case map[string]interface{}:
		var single workflow.RequestConfig
		if err := decodeStrict(v, &single); err != nil {
			return nil, err
		}
		configs = append(configs, single)
	default:
		return nil, fmt.Errorf("request file must hold a mapping or a list, got %T", generic)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("request file holds no requests")
	}

	params := make([]workflow.RequestParams, len(configs))
	for i, cfg := range configs {
		p, err := workflow.NewRequestParams(cfg)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		params[i] = p
	}
	return params, nil
}

func decodeStrict(input, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode requests: %w", err)
	}
	return nil
}
