// mopchan/handlers/actions.go
package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif" // Import gif decoder
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"mopchan/config"
	"mopchan/models"
	"mopchan/utils"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	_ "golang.org/x/image/webp"
)

// HandleCreateThread creates a new thread from a multipart form.
func HandleCreateThread(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreateThread")

	if err := r.ParseMultipartForm(config.MaxFileSize + 1024); err != nil {
		logger.Warn("Form parsing error", "error", err)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Form parsing error: " + err.Error()}, app)
		return
	}

	name := r.FormValue("name")
	subject := r.FormValue("subject")
	content := r.FormValue("content")
	if len(name) > config.MaxNameLen || len(subject) > config.MaxSubjectLen || len(content) > config.MaxContentLen {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "A form field exceeds the maximum length."}, app)
		return
	}

	imagePath, thumbPath, imageHash, err := processImage(r, app, logger)
	if err != nil {
		logger.Warn("Image processing failed", "error", err)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Image processing failed: " + err.Error()}, app)
		return
	}

	displayName, tripcode := utils.GenerateTripcode(name)

	thread, err := app.DB().CreateThread(models.ThreadInput{
		Subject:       subject,
		Content:       content,
		Name:          displayName,
		Tripcode:      tripcode,
		IsAdmin:       isAdminPost(r, app),
		ImagePath:     imagePath,
		ThumbnailPath: thumbPath,
		ImageHash:     imageHash,
		IP:            utils.GetIPAddress(r),
	})
	if err != nil {
		respondError(w, err, app)
		return
	}

	respondJSON(w, http.StatusOK, thread, app)
}

// HandleCreateReply appends a reply to an existing thread.
func HandleCreateReply(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreateReply")

	threadID, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread ID."}, app)
		return
	}

	if err := r.ParseMultipartForm(config.MaxFileSize + 1024); err != nil {
		logger.Warn("Form parsing error", "error", err)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Form parsing error: " + err.Error()}, app)
		return
	}

	name := r.FormValue("name")
	content := r.FormValue("content")
	if len(name) > config.MaxNameLen || len(content) > config.MaxContentLen {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "A form field exceeds the maximum length."}, app)
		return
	}

	imagePath, thumbPath, imageHash, err := processImage(r, app, logger)
	if err != nil {
		logger.Warn("Image processing failed", "error", err)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Image processing failed: " + err.Error()}, app)
		return
	}

	displayName, tripcode := utils.GenerateTripcode(name)
	sage := r.FormValue("sage") == "true" || strings.EqualFold(r.FormValue("email"), "sage")

	post, err := app.DB().CreatePost(threadID, models.PostInput{
		Content:       content,
		Name:          displayName,
		Tripcode:      tripcode,
		IsAdmin:       isAdminPost(r, app),
		Sage:          sage,
		ImagePath:     imagePath,
		ThumbnailPath: thumbPath,
		ImageHash:     imageHash,
		IP:            utils.GetIPAddress(r),
	})
	if err != nil {
		respondError(w, err, app)
		return
	}

	respondJSON(w, http.StatusOK, post, app)
}

// HandleCatalog serves the ordered thread listing.
func HandleCatalog(w http.ResponseWriter, r *http.Request, app App) {
	threads, err := app.DB().GetCatalog()
	if err != nil {
		respondError(w, err, app)
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"threads": threads}, app)
}

// HandleGetThread serves a single thread with its replies.
func HandleGetThread(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread ID."}, app)
		return
	}

	thread, err := app.DB().GetThread(threadID)
	if err != nil {
		respondError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, thread, app)
}

// isAdminPost reports whether this request carries a valid moderator
// credential and asked to post with the admin capcode.
func isAdminPost(r *http.Request, app App) bool {
	if r.FormValue("as_admin") != "true" {
		return false
	}
	ident, err := app.Auth().Authorize(bearerToken(r), models.RoleModerator)
	return err == nil && ident != nil
}

// processImage validates an uploaded image, re-encodes it, generates a
// thumbnail and resolves both through the blob store. Returns empty paths if
// no file was attached.
func processImage(r *http.Request, app App, logger *slog.Logger) (imagePath, thumbPath, imageHash string, err error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return "", "", "", nil
		}
		return "", "", "", fmt.Errorf("could not get form file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logger.Error("Failed to close upload file", "error", cerr)
		}
	}()

	limitedReader := &io.LimitedReader{R: file, N: config.MaxFileSize + 1}
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return "", "", "", fmt.Errorf("could not read file data: %w", err)
	}
	if limitedReader.N == 0 {
		return "", "", "", fmt.Errorf("file is larger than the %dMB limit", config.MaxFileSize/1024/1024)
	}
	if len(data) == 0 {
		return "", "", "", fmt.Errorf("file is empty")
	}

	// Magic byte validation
	contentType := http.DetectContentType(data)
	allowedTypes := map[string]bool{
		"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	}
	if !allowedTypes[contentType] {
		logger.Warn("User uploaded file with invalid MIME type", "detected_type", contentType, "filename", header.Filename)
		return "", "", "", fmt.Errorf("unsupported file type: %s. Only JPG, PNG, GIF, and WebP are allowed", contentType)
	}

	hash := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hash[:])

	// Content-hash dedup: the same image posted again reuses the stored blob.
	if existingPath, existingThumb, found := app.DB().FindImageByHash(hashStr); found {
		return existingPath, existingThumb, hashStr, nil
	}

	reader := bytes.NewReader(data)
	cfg, format, err := image.DecodeConfig(reader)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid image format, could not decode config: %w", err)
	}
	if cfg.Width > config.MaxWidth || cfg.Height > config.MaxHeight {
		return "", "", "", fmt.Errorf("image dimensions (%dx%d) exceed maximum (%dx%d)", cfg.Width, cfg.Height, config.MaxWidth, config.MaxHeight)
	}
	if _, err := reader.Seek(0, 0); err != nil {
		return "", "", "", fmt.Errorf("could not reset reader position: %w", err)
	}

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to decode image: %w", err)
	}

	// Re-encode for consistency; non-animated GIFs become JPEG.
	outputFormat := "jpeg"
	if format == "png" {
		outputFormat = "png"
	}

	var mainBuf bytes.Buffer
	if outputFormat == "png" {
		err = imaging.Encode(&mainBuf, img, imaging.PNG)
	} else {
		err = imaging.Encode(&mainBuf, img, imaging.JPEG, imaging.JPEGQuality(90))
	}
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode main image: %w", err)
	}

	mainFilename := fmt.Sprintf("%d_%s.%s", utils.GetTime().UnixNano(), hashStr[:12], outputFormat)
	imagePath, err = app.Storage().SaveFile(mainFilename, mainBuf.Bytes(), "image/"+outputFormat)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to store main image: %w", err)
	}

	// Thumbnail, preserving aspect ratio. A failed thumbnail does not fail
	// the post; it just proceeds without one.
	thumb := imaging.Fit(img, config.ThumbnailWidth, config.ThumbnailHeight, imaging.Lanczos)
	var thumbBuf bytes.Buffer
	if err := imaging.Encode(&thumbBuf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		logger.Error("Failed to encode thumbnail", "error", err)
		return imagePath, "", hashStr, nil
	}
	thumbFilename := fmt.Sprintf("%d_%s_thumb.jpeg", utils.GetTime().UnixNano(), hashStr[:12])
	thumbPath, err = app.Storage().SaveFile(thumbFilename, thumbBuf.Bytes(), "image/jpeg")
	if err != nil {
		logger.Error("Failed to store thumbnail", "error", err)
		return imagePath, "", hashStr, nil
	}

	return imagePath, thumbPath, hashStr, nil
}
