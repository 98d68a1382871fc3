package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("VERANDA_TEST_MODE") == "" {
			_ = os.Setenv("VERANDA_TEST_MODE", "1")
		}
	})
}
