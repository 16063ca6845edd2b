package types

import (
	"slices"
	"strings"
)

type DictionaryItem struct {
	Key   string
	Value string
}

type DictionaryItems []DictionaryItem

// Dictionary is an insertion-ordered string to string option bag.
// A nil *Dictionary is a valid empty bag for all read operations.
type Dictionary struct {
	items DictionaryItems
}

func NewDictionary(items ...DictionaryItem) *Dictionary {
	d := &Dictionary{}
	for _, item := range items {
		d.Set(item.Key, item.Value)
	}
	return d
}

func (d *Dictionary) Set(key, value string) {
	for idx := range d.items {
		if d.items[idx].Key == key {
			d.items[idx].Value = value
			return
		}
	}
	d.items = append(d.items, DictionaryItem{Key: key, Value: value})
}

func (d *Dictionary) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, item := range d.items {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

func (d *Dictionary) Delete(key string) bool {
	if d == nil {
		return false
	}
	idx := slices.IndexFunc(d.items, func(item DictionaryItem) bool {
		return item.Key == key
	})
	if idx < 0 {
		return false
	}
	d.items = slices.Delete(d.items, idx, idx+1)
	return true
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.items)
}

func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	result := make([]string, 0, len(d.items))
	for _, item := range d.items {
		result = append(result, item.Key)
	}
	return result
}

func (d *Dictionary) Items() DictionaryItems {
	if d == nil {
		return nil
	}
	return slices.Clone(d.items)
}

func (d *Dictionary) Clone() *Dictionary {
	if d == nil {
		return NewDictionary()
	}
	return &Dictionary{items: slices.Clone(d.items)}
}

// Reset removes all the items.
func (d *Dictionary) Reset() {
	d.items = d.items[:0]
}

// CopyFrom replaces the content with the content of src.
func (d *Dictionary) CopyFrom(src *Dictionary) {
	d.Reset()
	for _, item := range src.Items() {
		d.Set(item.Key, item.Value)
	}
}

func (d *Dictionary) String() string {
	var b strings.Builder
	for idx, item := range d.Items() {
		if idx > 0 {
			b.WriteByte(':')
		}
		b.WriteString(item.Key)
		b.WriteByte('=')
		b.WriteString(item.Value)
	}
	return b.String()
}
