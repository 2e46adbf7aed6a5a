// Package form 實作圖片壓縮表單的狀態控制器。
//
// 所有狀態變更都經由單一更新協程依序套用；上傳解碼、壓縮與結果尺寸解碼在其他協程執行，
// 完成後再把結果送回更新隊列。同類請求以「最新請求優先」處理：較舊的上傳或壓縮即使較晚完成，
// 結果也會被捨棄並回傳 common.ErrConflict。
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/compressor"
	imgsvc "image-compressor/internal/core/image"
	"image-compressor/internal/core/queue"
	"image-compressor/internal/pkg/common"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var errClosed = errors.New("form controller is closed")

// update 送入更新協程的狀態轉換
type update struct {
	apply func(State) (State, error)
	reply chan updateResult
}

type updateResult struct {
	state State
	err   error
}

// Controller 單一使用者的表單控制器
type Controller struct {
	opts       Options
	store      blob.Store
	compressor compressor.Compressor
	inspector  *imgsvc.Service
	notifier   Notifier

	state   atomic.Pointer[State]
	updates chan update
	done    chan struct{}
	stopped chan struct{}
	tasks   conc.WaitGroup

	uploadSeq   atomic.Uint64
	compressSeq atomic.Uint64
	closeOnce   sync.Once

	// taskMu 保護 closed，確保 Close 開始等待後不再加入背景工作
	taskMu sync.Mutex
	closed bool
}

// DimensionField 寬或高的變更，Set 為 false 時保持不變，Value 為 nil 時清除
type DimensionField struct {
	Set   bool
	Value *int
}

// Settings 一次套用的表單設定，全部通過驗證後才寫入
type Settings struct {
	Percentage *int
	Width      DimensionField
	Height     DimensionField
}

// NewController 掛載控制器並啟動更新協程，notifier 可為 nil
func NewController(opts Options, store blob.Store, comp compressor.Compressor, inspector *imgsvc.Service, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = nopNotifier{}
	}

	c := &Controller{
		opts:       opts,
		store:      store,
		compressor: comp,
		inspector:  inspector,
		notifier:   notifier,
		updates:    make(chan update),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	initial := initialState(opts)
	c.state.Store(&initial)

	go c.loop()
	return c
}

// loop 唯一寫入狀態的協程
func (c *Controller) loop() {
	defer close(c.stopped)

	for {
		select {
		case u := <-c.updates:
			cur := *c.state.Load()
			next, err := u.apply(cur)
			if err == nil {
				next.Version = cur.Version + 1
				c.state.Store(&next)
				cur = next
			}
			u.reply <- updateResult{state: cur, err: err}
		case <-c.done:
			return
		}
	}
}

// apply 將狀態轉換送入更新隊列並等待結果
func (c *Controller) apply(ctx context.Context, fn func(State) (State, error)) (State, error) {
	u := update{
		apply: fn,
		reply: make(chan updateResult, 1),
	}

	select {
	case c.updates <- u:
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-c.done:
		return c.Snapshot(), common.ErrSessionNotFound.WithError(errClosed)
	}

	r := <-u.reply
	return r.state, r.err
}

// Snapshot 目前的狀態快照
func (c *Controller) Snapshot() State {
	return *c.state.Load()
}

// Upload 檢查並載入使用者選擇的圖片
func (c *Controller) Upload(ctx context.Context, in blob.Blob) (State, error) {
	seq := c.uploadSeq.Add(1)

	info, err := c.inspector.Inspect(in.Data)
	if err != nil {
		rejected := common.ErrInvalidImageFormat
		if errors.Is(err, imgsvc.ErrTooLarge) {
			rejected = common.ErrInvalidImageSize
		}
		common.LogWarn("Upload rejected",
			zap.String("name", in.Name),
			zap.Int64("size", in.Size()),
			zap.Error(err),
		)
		c.notify(KindUploadRejected, rejected.Message)
		return c.Snapshot(), rejected.WithError(err)
	}
	in.MediaType = info.MediaType

	key, err := c.store.Put(ctx, in)
	if err != nil {
		if errors.Is(err, blob.ErrFull) {
			c.notify(KindUploadRejected, common.ErrStorageFull.Message)
			return c.Snapshot(), common.ErrStorageFull.WithError(err)
		}
		return c.Snapshot(), common.ErrInternalError.WithError(fmt.Errorf("failed to store upload: %w", err))
	}

	dims := info.Dimensions
	var revoke []string
	st, err := c.apply(ctx, func(s State) (State, error) {
		if seq < s.uploadSeq {
			return s, common.ErrConflict
		}

		revoke = revoke[:0]
		if s.originalKey != "" {
			revoke = append(revoke, s.originalKey)
		}

		original := in
		s.OriginalImage = &original
		s.OriginalName = in.Name
		s.OriginalSize = in.Size()
		s.OriginalPreviewRef = c.ref(key)
		s.OriginalDimensions = &dims
		s.originalKey = key
		s.uploadSeq = seq
		s.Epoch++

		if c.opts.ResetOnUpload {
			if s.compressedKey != "" {
				revoke = append(revoke, s.compressedKey)
			}
			s.compressedKey = ""
			s.CompressedPreviewRef = c.opts.PlaceholderRef
			s.CompressedDimensions = nil
			s.CompressedSizeKB = nil
			s.HasCompressedOnce = false
			s.LastOptions = nil
		}
		return s, nil
	})
	if err != nil {
		c.revoke(key)
		return st, err
	}
	c.revoke(revoke...)

	common.LogInfo("Image uploaded",
		zap.String("name", in.Name),
		zap.String("media_type", info.MediaType),
		zap.String("dimensions", dims.String()),
		zap.String("size", humanize.IBytes(uint64(in.Size()))),
	)
	return st, nil
}

// SetCompressionPercentage 設定壓縮百分比，不會觸發壓縮
func (c *Controller) SetCompressionPercentage(ctx context.Context, value int) (State, error) {
	return c.ApplySettings(ctx, Settings{Percentage: &value})
}

// SetTargetWidth 設定目標寬度，nil 表示清除
func (c *Controller) SetTargetWidth(ctx context.Context, value *int) (State, error) {
	return c.ApplySettings(ctx, Settings{Width: DimensionField{Set: true, Value: value}})
}

// SetTargetHeight 設定目標高度，nil 表示清除
func (c *Controller) SetTargetHeight(ctx context.Context, value *int) (State, error) {
	return c.ApplySettings(ctx, Settings{Height: DimensionField{Set: true, Value: value}})
}

// ApplySettings 驗證所有欄位後以單一更新套用，任一欄位無效時狀態不變
func (c *Controller) ApplySettings(ctx context.Context, in Settings) (State, error) {
	if in.Percentage != nil {
		if p := *in.Percentage; p < 1 || p > 100 {
			return c.Snapshot(), common.ErrInvalidPercentage.WithError(fmt.Errorf("percentage %d out of range", p))
		}
	}
	width, err := c.validateDimension("width", in.Width.Value)
	if err != nil {
		return c.Snapshot(), err
	}
	height, err := c.validateDimension("height", in.Height.Value)
	if err != nil {
		return c.Snapshot(), err
	}

	return c.apply(ctx, func(s State) (State, error) {
		if in.Percentage != nil {
			s.CompressionPercentage = *in.Percentage
		}
		if in.Width.Set {
			s.TargetWidth = width
		}
		if in.Height.Set {
			s.TargetHeight = height
		}
		return s, nil
	})
}

// validateDimension 回傳複本，避免與呼叫端共用指標
func (c *Controller) validateDimension(axis string, value *int) (*int, error) {
	if value == nil {
		return nil, nil
	}
	v := *value
	if v <= 0 || (c.opts.MaxTargetDimension > 0 && v > c.opts.MaxTargetDimension) {
		return nil, common.ErrInvalidDimension.WithError(fmt.Errorf("%s %d out of range", axis, v))
	}
	return &v, nil
}

// Compress 以目前設定壓縮已上傳的圖片
func (c *Controller) Compress(ctx context.Context) (State, error) {
	snap := c.Snapshot()
	if !snap.ImageLoaded() {
		c.notify(KindPrecondition, common.ErrNoImage.Message)
		return snap, common.ErrNoImage
	}

	opts := BuildOptions(snap, c.opts.DefaultMaxDimension, c.opts.UseWebWorker)
	seq := c.compressSeq.Add(1)
	epoch := snap.Epoch
	start := time.Now()

	out, err := c.compressor.Compress(ctx, *snap.OriginalImage, opts)
	if err != nil {
		common.LogError("Image compression error",
			zap.Error(err),
			zap.String("name", snap.OriginalName),
			zap.Float64("max_size_mb", opts.MaxSizeMB),
			zap.Float64("initial_quality", opts.InitialQuality),
			zap.Int("max_width_or_height", opts.MaxWidthOrHeight),
		)
		c.notify(KindCompressionFailed, common.ErrCompressionFailed.Message)
		if errors.Is(err, queue.ErrQueueFull) {
			return c.Snapshot(), common.ErrQueueFull.WithError(err)
		}
		return c.Snapshot(), common.ErrCompressionFailed.WithError(err)
	}

	key, err := c.store.Put(ctx, out)
	if err != nil {
		if errors.Is(err, blob.ErrFull) {
			c.notify(KindCompressionFailed, common.ErrStorageFull.Message)
			return c.Snapshot(), common.ErrStorageFull.WithError(err)
		}
		c.notify(KindCompressionFailed, common.ErrCompressionFailed.Message)
		return c.Snapshot(), common.ErrCompressionFailed.WithError(fmt.Errorf("failed to store result: %w", err))
	}

	sizeKB := common.Round2(out.SizeKB())
	var previous string
	st, err := c.apply(ctx, func(s State) (State, error) {
		if s.Epoch != epoch || seq < s.compressSeq {
			return s, common.ErrConflict
		}

		previous = s.compressedKey
		used := opts
		s.compressedKey = key
		s.CompressedPreviewRef = c.ref(key)
		s.CompressedSizeKB = &sizeKB
		s.CompressedDimensions = nil
		s.HasCompressedOnce = true
		s.LastOptions = &used
		s.compressSeq = seq
		return s, nil
	})
	if err != nil {
		c.revoke(key)
		return st, err
	}
	if previous != "" {
		c.revoke(previous)
	}

	data := out.Data
	c.goTask(func() {
		c.resolveCompressedDimensions(key, data)
	})

	common.LogInfo("Image compressed",
		zap.String("name", snap.OriginalName),
		zap.Float64("size_kb", sizeKB),
		zap.Int("percentage", snap.CompressionPercentage),
		zap.Duration("elapsed", time.Since(start)),
	)
	return st, nil
}

// resolveCompressedDimensions 解碼結果尺寸，只在參照仍為目前結果時套用
func (c *Controller) resolveCompressedDimensions(key string, data []byte) {
	dims, _, err := imgsvc.DecodeDimensions(data)
	if err != nil {
		common.LogWarn("Failed to decode compressed dimensions", zap.Error(err))
		return
	}

	_, err = c.apply(context.Background(), func(s State) (State, error) {
		if s.compressedKey != key {
			return s, common.ErrConflict
		}
		s.CompressedDimensions = &dims
		return s, nil
	})
	if err != nil && !errors.Is(err, common.ErrConflict) {
		common.LogDebug("Compressed dimensions dropped", zap.Error(err))
	}
}

// CompressedBlob 取得目前的壓縮結果供下載
func (c *Controller) CompressedBlob(ctx context.Context) (blob.Blob, error) {
	snap := c.Snapshot()
	if snap.compressedKey == "" {
		return blob.Blob{}, common.ErrNoResult
	}

	b, err := c.store.Get(ctx, snap.compressedKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return blob.Blob{}, common.ErrNoResult.WithError(err)
		}
		return blob.Blob{}, common.ErrInternalError.WithError(err)
	}
	return b, nil
}

// Touch 延長目前原圖與結果參照的存活時間
func (c *Controller) Touch(ctx context.Context) error {
	snap := c.Snapshot()
	var keys []string
	for _, key := range []string{snap.originalKey, snap.compressedKey} {
		if key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Touch(ctx, keys...)
}

// goTask 啟動背景工作，控制器已卸載時略過
func (c *Controller) goTask(fn func()) {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	if c.closed {
		return
	}
	c.tasks.Go(fn)
}

// Wait 等待背景工作完成
func (c *Controller) Wait() {
	c.tasks.Wait()
}

// Close 卸載控制器，停止更新協程並撤銷所有參照
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.taskMu.Lock()
		c.closed = true
		c.taskMu.Unlock()

		close(c.done)
		<-c.stopped
		c.tasks.Wait()

		snap := c.Snapshot()
		c.revoke(snap.originalKey, snap.compressedKey)
	})
}

func (c *Controller) ref(key string) string {
	return c.opts.RefPrefix + key
}

// revoke 撤銷參照，失敗只記錄
func (c *Controller) revoke(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := c.store.Delete(context.Background(), key); err != nil {
			common.LogWarn("Failed to revoke blob", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *Controller) notify(kind Kind, message string) {
	c.notifier.Notify(Notification{
		Kind:    kind,
		Message: message,
		At:      time.Now(),
	})
}
