package helper

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
)

// GenerateRandNum 返回 [min, max) 内的随机整数
// 共享源加锁而不是每次重播种，连续调用不会撞出同值
func GenerateRandNum(min, max int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return min + rng.Intn(max-min)
}
