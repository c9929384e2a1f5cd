package auth0

import (
	"context"
	"sync"
)

// FakeClient serves user info from memory, keyed by access token, and counts
// lookups so tests can check riders are registered only once.
type FakeClient struct {
	mu      sync.Mutex
	users   map[string]*UserInfo
	lookups int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{users: map[string]*UserInfo{}}
}

func (c *FakeClient) GetUserInfo(_ context.Context, accessToken string) (*UserInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if user, ok := c.users[accessToken]; ok {
		return user, nil
	}
	return nil, ErrUserInfoFailed
}

func (c *FakeClient) AddUser(accessToken string, info *UserInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[accessToken] = info
}

// Lookups returns how many times GetUserInfo was called.
func (c *FakeClient) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}
