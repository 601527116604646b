// Package auth はジョブ投入APIを守るサービスAPIキーの検証を提供します。
package auth

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/onboardly/application-pdf/internal/config"
)

var (
	attemptWindow = 15 * time.Minute
	lockDuration  = 10 * time.Minute
	maxAttempts   = 5
)

// ErrNotConfigured は API_KEY_HASH が未設定であることを表します。
var ErrNotConfigured = errors.New("API_KEY_HASH が設定されていません")

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager はAPIキーの照合と、IPごとの失敗回数を管理します。
type Manager struct {
	keyHash  []byte
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		keyHash:  []byte(cfg.APIKeyHash),
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

// Verify はキーがハッシュと一致するかを返します。
func (m *Manager) Verify(key string) (bool, error) {
	if len(m.keyHash) == 0 {
		return false, ErrNotConfigured
	}
	if key == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(key))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkLock はロック中であれば残り時間を返します。
func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// recordFailure は失敗を記録し、ロックまでの残り回数を返します。
func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > attemptWindow || (!state.lockedUntil.IsZero() && !now.Before(state.lockedUntil)) {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxAttempts
	}

	return max(maxAttempts-state.count, 0)
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}
