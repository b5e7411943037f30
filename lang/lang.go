package lang

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultFile []byte

var (
	mu       sync.RWMutex
	messages map[string]string
)

func init() {
	m, _, err := parse(defaultFile)
	if err != nil {
		panic(fmt.Sprintf("lang: embedded translations: %v", err))
	}
	messages = m
}

// Load replaces the active translations with the ones in path. When path
// cannot be read the embedded defaults stay active.
func Load(path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Info("Using embedded translations", zap.String("path", path), zap.Error(err))
		return LoadBytes(defaultFile, log)
	}
	return LoadBytes(data, log)
}

func LoadBytes(data []byte, log *zap.Logger) error {
	m, active, err := parse(data)
	if err != nil {
		return err
	}

	mu.Lock()
	messages = m
	mu.Unlock()

	log.Info("Loaded translations", zap.String("language", active), zap.Int("keys", len(m)))
	return nil
}

func parse(data []byte) (map[string]string, string, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("parse translations: %w", err)
	}

	active := "de"
	if v, ok := raw["active_language"].(string); ok && v != "" {
		active = v
	}

	block, ok := raw[active]
	if !ok {
		active = "en"
		if block, ok = raw[active]; !ok {
			return nil, "", fmt.Errorf("language block %q missing", active)
		}
	}

	blockMap, ok := block.(map[string]interface{})
	if !ok {
		return nil, "", fmt.Errorf("language block %q is not a map", active)
	}

	m := make(map[string]string, len(blockMap))
	for k, v := range blockMap {
		if s, ok := v.(string); ok {
			m[k] = s
		}
	}
	return m, active, nil
}

// T looks up key and substitutes {name} placeholders from name/value pairs.
func T(key string, pairs ...string) string {
	mu.RLock()
	s, ok := messages[key]
	mu.RUnlock()

	if !ok {
		return "{" + key + "}"
	}

	for j := 0; j+1 < len(pairs); j += 2 {
		s = strings.ReplaceAll(s, "{"+pairs[j]+"}", pairs[j+1])
	}
	return s
}
