package avcore

import (
	"github.com/xaionaro-go/avcore/types"
)

// CustomOption is a raw option passed to a codec or a format as is.
type CustomOption struct {
	Key   string `json:"key"   yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type CustomOptions []CustomOption

// Get returns the value of the last option with the given key.
func (opts CustomOptions) Get(key string) (string, bool) {
	for idx := len(opts) - 1; idx >= 0; idx-- {
		if opts[idx].Key == key {
			return opts[idx].Value, true
		}
	}
	return "", false
}

// Dictionary returns nil if there are no options.
func (opts CustomOptions) Dictionary() *types.Dictionary {
	if len(opts) == 0 {
		return nil
	}
	result := types.NewDictionary()
	for _, opt := range opts {
		result.Set(opt.Key, opt.Value)
	}
	return result
}
