// Command wtlfudemo is a small runnable demonstration of the wtlfu cache:
// bounded size, expire-after-write, and the background auto-cleanup
// janitor all driven against a real clock.
package main

import (
	"fmt"
	"time"

	"github.com/tempuscache/wtlfu"
)

func main() {
	cache, err := wtlfu.New[string, string](
		wtlfu.WithMaximumSize[string, string](1000),
		wtlfu.WithExpireAfterWrite[string, string](5*time.Second),
		wtlfu.WithAutoCleanupInterval[string, string](2*time.Second),
		wtlfu.WithRecordStats[string, string](),
	)
	if err != nil {
		panic(err)
	}
	defer cache.Close()

	if err := cache.Put("name", "krishna"); err != nil {
		panic(err)
	}

	if v, ok := cache.Get("name"); ok {
		fmt.Println("got:", v)
	}

	time.Sleep(6 * time.Second)

	if _, ok := cache.Get("name"); !ok {
		fmt.Println("expired (past its 5s write TTL)")
	}

	snap := cache.Stats()
	fmt.Printf("hits=%d misses=%d hitRate=%.2f\n", snap.Hits, snap.Misses, snap.HitRate())
}
