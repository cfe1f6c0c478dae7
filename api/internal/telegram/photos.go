package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/util"
)

const maxPhotoBytes = 20 << 20

// acceptPhoto predicts from a package photo. Photos of one album (front and
// back of a box) are stitched into one image once the album stops growing.
func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	data, err := r.downloadPhoto(msg.Photo)
	if err != nil {
		r.send(cid, "❌ Could not download the photo: "+err.Error())
		return
	}
	if msg.MediaGroupID == "" {
		r.predictImage(ctx, cid, data, msg.Caption)
		return
	}

	v, loaded := albums.LoadOrStore(msg.MediaGroupID, &photoAlbum{ChatID: cid})
	a := v.(*photoAlbum)
	a.mu.Lock()
	a.images = append(a.images, data)
	if msg.Caption != "" {
		a.Caption = msg.Caption
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	key := msg.MediaGroupID
	a.timer = time.AfterFunc(albumDebounce, func() { r.processAlbum(context.WithoutCancel(ctx), key) })
	a.mu.Unlock()

	if !loaded {
		r.send(cid, "📷 Photo received. Send the other sides of the package in the same album if you have them.")
	}
}

func (r *Router) processAlbum(ctx context.Context, key string) {
	v, ok := albums.LoadAndDelete(key)
	if !ok {
		return
	}
	a := v.(*photoAlbum)
	a.mu.Lock()
	images := append([][]byte(nil), a.images...)
	caption := a.Caption
	a.mu.Unlock()

	merged, err := stitchVertical(images)
	if err != nil {
		r.send(a.ChatID, "❌ Could not combine the photos: "+err.Error())
		return
	}
	r.predictImage(ctx, a.ChatID, merged, caption)
}

func (r *Router) downloadPhoto(sizes []tgbotapi.PhotoSize) ([]byte, error) {
	ph := sizes[len(sizes)-1]
	url, err := r.Bot.GetFileDirectURL(ph.FileID)
	if err != nil {
		return nil, err
	}
	return download(url)
}

// stitchVertical stacks images top to bottom on a white canvas, centred, and
// scales the result down to maxPixels. A single image is returned unchanged.
func stitchVertical(images [][]byte) ([]byte, error) {
	if len(images) == 1 {
		return images[0], nil
	}
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		maxW = max(maxW, img.Bounds().Dx())
		sumH += img.Bounds().Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, errors.New("empty images")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	y := 0
	for _, img := range decoded {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		x := (maxW - w) / 2
		draw.Draw(canvas, image.Rect(x, y, x+w, y+h), img, img.Bounds().Min, draw.Over)
		y += h
	}

	var out image.Image = canvas
	if total := maxW * sumH; total > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(total))
		out = scaleDownNN(canvas, max(1, int(float64(maxW)*scale+0.5)), max(1, int(float64(sumH)*scale+0.5)))
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nearest-neighbour downscale
func scaleDownNN(src image.Image, newW, newH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	sb := src.Bounds()
	for y := 0; y < newH; y++ {
		sy := sb.Min.Y + (y*sb.Dy())/newH
		for x := 0; x < newW; x++ {
			dst.Set(x, y, src.At(sb.Min.X+(x*sb.Dx())/newW, sy))
		}
	}
	return dst
}

var httpc = &http.Client{Timeout: 60 * time.Second}

func download(url string) ([]byte, error) {
	resp, err := httpc.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}

func photoFile(data []byte) disposal.ImageFile {
	mime := util.SniffMimeHTTP(data)
	return disposal.ImageFile{Name: "medicine" + util.ExtForMIME(mime), MIME: mime, Data: data}
}
