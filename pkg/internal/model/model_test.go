package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareLinkExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.False(t, (&ShareLink{}).Expired(now), "never-expiring link")
	assert.True(t, (&ShareLink{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&ShareLink{ExpiresAt: &now}).Expired(now), "expiry instant is already expired")
	assert.False(t, (&ShareLink{ExpiresAt: &future}).Expired(now))
}

func TestUserRemaining(t *testing.T) {
	assert.Equal(t, int64(40), (&User{StorageLimit: 100, StorageUsed: 60}).Remaining())
	assert.Equal(t, int64(0), (&User{StorageLimit: 100, StorageUsed: 160}).Remaining())
}

func TestSettingsSnapshot(t *testing.T) {
	l := &ShareLink{ID: "sh_1", PasswordHash: "x", AllowDownload: true}
	s := l.Settings()

	assert.Equal(t, "sh_1", s.ShareID)
	assert.True(t, s.PasswordProtected)
	assert.True(t, s.AllowDownload)
	assert.False(t, s.AllowPreview)
}
