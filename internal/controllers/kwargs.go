package controllers

import (
	"fmt"
	"strconv"

	"github.com/archivarr/archivarr/internal/workers"
)

// Kwargs cross the worker-runtime boundary as map values; these helpers
// read back the common shapes without caring whether the value survived a
// serialisation round trip as a float64.
func kwargUint64(kwargs workers.Kwargs, key string) uint64 {
	switch v := kwargs[key].(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	case string:
		n, _ := strconv.ParseUint(v, 10, 64)
		return n
	}
	return 0
}

func kwargInt(kwargs workers.Kwargs, key string, fallback int) int {
	switch v := kwargs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func kwargString(kwargs workers.Kwargs, key string) string {
	switch v := kwargs[key].(type) {
	case string:
		return v
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", kwargs[key])
}

func kwargBool(kwargs workers.Kwargs, key string) bool {
	b, _ := kwargs[key].(bool)
	return b
}
