package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/oceanlabs/hydrolabel-go/internal/annotation"
	"github.com/oceanlabs/hydrolabel-go/internal/audioprobe"
)

// initMediaRoutes registers spectrogram and audio serving endpoints. Media is
// addressed by session and item, never by a caller-supplied path.
func (c *Controller) initMediaRoutes() {
	c.Group.GET("/media/:session/:item/spectrogram", c.ServeSpectrogram)
	c.Group.GET("/media/:session/:item/audio", c.ServeAudio)
	c.Group.GET("/media/:session/:item/audio/info", c.GetAudioInfo)
}

// ServeSpectrogram handles GET /api/v1/media/:session/:item/spectrogram,
// preferring the PNG rendering over the raw MAT file.
func (c *Controller) ServeSpectrogram(ctx echo.Context) error {
	item, session, errResp := c.sessionItem(ctx)
	if errResp != nil {
		return errResp
	}

	path := item.SpectrogramPath
	if path == "" || !fileExists(path) {
		path = item.MatPath
	}
	if path == "" || !fileExists(path) {
		return c.HandleError(ctx, nil, "no spectrogram file for item", http.StatusNotFound)
	}
	if !c.pathAllowed(session, item, path) {
		return c.HandleError(ctx, nil, "spectrogram path not permitted", http.StatusForbidden)
	}
	return ctx.File(path)
}

// ServeAudio handles GET /api/v1/media/:session/:item/audio.
func (c *Controller) ServeAudio(ctx echo.Context) error {
	item, session, errResp := c.sessionItem(ctx)
	if errResp != nil {
		return errResp
	}

	path := c.resolveAudio(session, item)
	if path == "" {
		return c.HandleError(ctx, nil, "no audio file for item", http.StatusNotFound)
	}
	return ctx.File(path)
}

// GetAudioInfo handles GET /api/v1/media/:session/:item/audio/info,
// returning the probed header information of the item's audio clip.
func (c *Controller) GetAudioInfo(ctx echo.Context) error {
	item, session, errResp := c.sessionItem(ctx)
	if errResp != nil {
		return errResp
	}
	if !c.Settings.Media.ProbeAudio {
		return c.HandleError(ctx, nil, "audio probing is disabled", http.StatusNotFound)
	}

	path := c.resolveAudio(session, item)
	if path == "" {
		return c.HandleError(ctx, nil, "no audio file for item", http.StatusNotFound)
	}

	info, err := audioprobe.Probe(path)
	if err != nil {
		return c.HandleError(ctx, err, "failed to probe audio file", http.StatusUnprocessableEntity)
	}
	return ctx.JSON(http.StatusOK, info)
}

func (c *Controller) sessionItem(ctx echo.Context) (*annotation.Item, *Session, error) {
	session, ok := c.session(ctx.Param("session"))
	if !ok {
		return nil, nil, c.HandleError(ctx, nil, "session not found", http.StatusNotFound)
	}
	itemID := ctx.Param("item")
	for i := range session.Dataset.Items {
		item := &session.Dataset.Items[i]
		if item.ItemID == itemID ||
			annotation.NormalizeItemKey(item.ItemID) == annotation.NormalizeItemKey(itemID) {
			return item, session, nil
		}
	}
	return nil, nil, c.HandleError(ctx, nil, "item not found", http.StatusNotFound)
}

// resolveAudio returns the item's audio path, falling back to a stem match
// inside the session's audio roots.
func (c *Controller) resolveAudio(session *Session, item *annotation.Item) string {
	if item.AudioPath != "" && fileExists(item.AudioPath) {
		return item.AudioPath
	}

	stem := annotation.NormalizeItemKey(item.ItemID)
	for _, root := range session.Dataset.AudioRoots {
		for _, ext := range []string{".flac", ".wav", ".mp3", ".ogg"} {
			candidate := filepath.Join(root, stem+ext)
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return ""
}

// pathAllowed restricts served files to the item's own recorded paths and
// the session audio roots, so a session can never read outside its dataset.
func (c *Controller) pathAllowed(session *Session, item *annotation.Item, path string) bool {
	if path == item.SpectrogramPath || path == item.MatPath || path == item.AudioPath {
		return true
	}
	for _, root := range session.Dataset.AudioRoots {
		if strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
