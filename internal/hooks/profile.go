package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
)

// Profile holds the user's profile row, or nil when none exists yet. It has
// no live subscription.
type Profile struct {
	*Resource[*core.Profile]
	store   ProfileStore
	avatars AvatarStore
}

func NewProfile(store ProfileStore, avatars AvatarStore, opts Options) *Profile {
	h := &Profile{store: store, avatars: avatars}
	opts.Feed = nil
	h.Resource = NewResource("profile", h.load, opts)
	return h
}

func (h *Profile) load(ctx context.Context, userID uuid.UUID) (*core.Profile, error) {
	p, err := h.store.GetProfile(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update patches the profile owned by the current user.
func (h *Profile) Update(ctx context.Context, patch core.ProfilePatch) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := patch.Validate(); err != nil {
		return err
	}
	if _, err := h.store.UpdateProfile(ctx, user.ID, patch); err != nil {
		return err
	}
	_ = h.fetchGen(ctx, gen)
	return nil
}

// AvatarPath builds {userId}/{token}{.ext} from the uploaded file name.
func AvatarPath(userID uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), ext)
}

// UploadAvatar stores a new avatar object, points the profile at it and
// returns its public URL. The previous object is deleted once the profile
// no longer references it; if the profile update fails the new object is
// removed instead.
func (h *Profile) UploadAvatar(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	path := AvatarPath(user.ID, filename)
	url, err := h.avatars.UploadAvatar(ctx, path, contentType, body)
	if err != nil {
		return "", err
	}
	previous := h.avatarURL()
	if _, err := h.store.UpdateProfile(ctx, user.ID, core.ProfilePatch{AvatarURL: &url}); err != nil {
		h.deleteObject(ctx, url)
		return "", err
	}
	if previous != "" && previous != url {
		h.deleteObject(ctx, previous)
	}
	_ = h.fetchGen(ctx, gen)
	return url, nil
}

// RemoveAvatar clears the avatar URL and deletes the stored object.
func (h *Profile) RemoveAvatar(ctx context.Context) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	previous := h.avatarURL()
	empty := ""
	if _, err := h.store.UpdateProfile(ctx, user.ID, core.ProfilePatch{AvatarURL: &empty}); err != nil {
		return err
	}
	if previous != "" {
		h.deleteObject(ctx, previous)
	}
	_ = h.fetchGen(ctx, gen)
	return nil
}

func (h *Profile) avatarURL() string {
	if p := h.State().Items; p != nil {
		return p.AvatarURL
	}
	return ""
}

func (h *Profile) deleteObject(ctx context.Context, url string) {
	if err := h.avatars.DeleteAvatar(ctx, url); err != nil {
		h.logger.WarnContext(ctx, "Avatar object delete failed",
			log.NewFields().WithOperation(log.OpDelete).WithError(err).ToSlice()...)
	}
}
