package manager

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// AccountGate 按账户计数的持仓名额闸门。
// 名额只在"预占→提交→放行"这一小段里被持有，不跨越整个持仓生命周期。
type AccountGate struct {
	mu       sync.Mutex
	sems     map[string]*semaphore.Weighted
	capacity map[string]int64
	fallback int64
}

// NewAccountGate 创建闸门。defaultSlots 是未单独配置账户的名额数。
func NewAccountGate(defaultSlots int) *AccountGate {
	if defaultSlots <= 0 {
		defaultSlots = 3
	}
	return &AccountGate{
		sems:     make(map[string]*semaphore.Weighted),
		capacity: make(map[string]int64),
		fallback: int64(defaultSlots),
	}
}

// Configure 设置账户名额，装配阶段调用。名额相同则不动，
// 不同则换新信号量，运行中改动会丢掉在途的占用计数。
func (g *AccountGate) Configure(account string, slots int) {
	if account == "" || slots <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.capacity[account] == int64(slots) {
		return
	}
	g.capacity[account] = int64(slots)
	g.sems[account] = semaphore.NewWeighted(int64(slots))
}

// TryReserve 非阻塞抢占一个名额，抢不到立即返回 false。
func (g *AccountGate) TryReserve(account string) bool {
	return g.sem(account).TryAcquire(1)
}

// Release 归还名额。只能在 TryReserve 成功后调用一次。
func (g *AccountGate) Release(account string) {
	g.mu.Lock()
	sem := g.sems[account]
	g.mu.Unlock()
	if sem != nil {
		sem.Release(1)
	}
}

// Slots 账户的名额配置，0 表示走默认值。
func (g *AccountGate) Slots(account string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.capacity[account]; ok {
		return int(n)
	}
	return int(g.fallback)
}

func (g *AccountGate) sem(account string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sem, ok := g.sems[account]; ok {
		return sem
	}
	sem := semaphore.NewWeighted(g.fallback)
	g.sems[account] = sem
	g.capacity[account] = g.fallback
	return sem
}
