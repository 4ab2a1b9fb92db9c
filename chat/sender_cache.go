package chat

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"social-chat-core/models"
)

// ProfileLookup fetches one profile by username.
type ProfileLookup func(ctx context.Context, username string) (*models.SenderProfile, error)

// SenderCache memoizes sender profiles for one session. Every message from
// the same username shares a single profile instance, so a successful lookup
// upgrades all of them in place. Failed lookups keep serving the placeholder
// and are not retried; a screen rendering sixty messages from the same
// unknown sender must not turn into sixty requests.
type SenderCache struct {
	mu        sync.Mutex
	lookup    ProfileLookup
	profiles  map[string]*models.SenderProfile
	resolved  map[string]bool
	onUpgrade func(username string)
	group     singleflight.Group
}

func NewSenderCache(lookup ProfileLookup) *SenderCache {
	return &SenderCache{
		lookup:   lookup,
		profiles: make(map[string]*models.SenderProfile),
		resolved: make(map[string]bool),
	}
}

// OnUpgrade registers fn to run after a placeholder has been upgraded in
// place, so the owner can re-render.
func (c *SenderCache) OnUpgrade(fn func(username string)) {
	c.mu.Lock()
	c.onUpgrade = fn
	c.mu.Unlock()
}

// Get returns the shared profile instance for username, creating a
// placeholder if none exists. It never performs I/O.
func (c *SenderCache) Get(username string) *models.SenderProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(username)
}

func (c *SenderCache) getLocked(username string) *models.SenderProfile {
	if p, ok := c.profiles[username]; ok {
		return p
	}
	p := models.PlaceholderProfile(username)
	c.profiles[username] = p
	return p
}

// Put registers a fully known profile, e.g. one embedded in a push payload.
// An existing shared instance is upgraded in place; the returned pointer is
// always the instance messages should reference.
func (c *SenderCache) Put(p *models.SenderProfile) *models.SenderProfile {
	if p == nil || p.Username == "" {
		return p
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.profiles[p.Username]
	if !ok {
		p.Placeholder = false
		c.profiles[p.Username] = p
		c.resolved[p.Username] = true
		return p
	}
	if existing != p {
		upgradeProfile(existing, p)
	}
	c.resolved[p.Username] = true
	return existing
}

// Resolve returns the shared profile for every requested username, issuing
// at most one lookup per username over the cache's lifetime. Concurrent
// calls for the same username share a single in-flight request. The returned
// instances may still be placeholders when a lookup failed.
func (c *SenderCache) Resolve(ctx context.Context, usernames ...string) map[string]*models.SenderProfile {
	out := make(map[string]*models.SenderProfile, len(usernames))
	var wg sync.WaitGroup
	for _, username := range usernames {
		if username == "" {
			continue
		}
		c.mu.Lock()
		p := c.getLocked(username)
		done := c.resolved[username]
		c.mu.Unlock()
		out[username] = p
		if done {
			continue
		}
		wg.Add(1)
		go func(username string) {
			defer wg.Done()
			c.resolveOne(ctx, username)
		}(username)
	}
	wg.Wait()
	return out
}

func (c *SenderCache) resolveOne(ctx context.Context, username string) {
	c.group.Do(username, func() (any, error) {
		if c.lookup == nil {
			c.mu.Lock()
			c.resolved[username] = true
			c.mu.Unlock()
			return nil, nil
		}
		fetched, err := c.lookup(ctx, username)

		c.mu.Lock()
		c.resolved[username] = true
		var hook func(string)
		if err == nil && fetched != nil {
			upgradeProfile(c.getLocked(username), fetched)
			hook = c.onUpgrade
		}
		c.mu.Unlock()

		if err != nil {
			log.Printf("chat: profile lookup for %q failed, keeping placeholder: %v", username, err)
			return nil, nil
		}
		if hook != nil {
			hook(username)
		}
		return nil, nil
	})
}

// upgradeProfile copies fetched fields onto the shared instance.
func upgradeProfile(target, fetched *models.SenderProfile) {
	target.FirstName = fetched.FirstName
	target.LastName = fetched.LastName
	target.Avatar = fetched.Avatar
	target.AboutMe = fetched.AboutMe
	target.Placeholder = false
}
