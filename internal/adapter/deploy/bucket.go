package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/pkg/logger"
	pkgErrors "bluegreen-cd/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// routingObject 桶内的路由对象, 记录各槽位的权重与启停.
// 边缘网关按此对象分流, 写入即生效.
type routingObject struct {
	Weights   map[string]int  `json:"weights"`
	Enabled   map[string]bool `json:"enabled"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BucketDriver 静态资源驱动, 槽位对应桶内前缀
type BucketDriver struct {
	mc     *minio.Client
	bucket string
}

func NewBucketDriver(cfg config.BucketConfig) (*BucketDriver, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储客户端失败: %w", err)
	}
	return &BucketDriver{mc: mc, bucket: cfg.Bucket}, nil
}

// Deploy 按清单把制品上传到槽位前缀下, 逐文件设置Cache-Control
func (d *BucketDriver) Deploy(ctx context.Context, param *DeployParam) error {
	raw, err := os.ReadFile(filepath.Join(param.ArtifactPath, ManifestFileName))
	if err != nil {
		return pkgErrors.NewDeployError(false, fmt.Errorf("读取清单失败: %w", err))
	}
	manifest, err := ParseManifest(raw)
	if err != nil {
		return pkgErrors.NewDeployError(false, err)
	}
	if manifest.Version != param.ArtifactVersion {
		return pkgErrors.NewDeployError(false,
			fmt.Errorf("制品清单版本 %s 与请求版本 %s 不一致", manifest.Version, param.ArtifactVersion))
	}

	log := logger.Log.With(
		zap.String("target", param.Slot.TargetName),
		zap.String("slot", param.Slot.SlotName),
		zap.String("artifact_version", param.ArtifactVersion),
	)

	// 先传immutable, 最后传entry, 避免入口先于静态资源可见
	ordered := make([]ArtifactFile, 0, len(manifest.Files))
	entries := make([]ArtifactFile, 0, 2)
	for _, f := range manifest.Files {
		if f.Class == "entry" {
			entries = append(entries, f)
		} else {
			ordered = append(ordered, f)
		}
	}
	ordered = append(ordered, entries...)

	for _, f := range ordered {
		local := filepath.Join(param.ArtifactPath, f.Path)
		key := param.Slot.BackingResourceID + "/" + f.Path
		if err := d.putFile(ctx, local, key, f.Class); err != nil {
			return classifyBucketErr(fmt.Errorf("上传 %s 失败: %w", f.Path, err))
		}
	}

	// 清单落底, 作为就绪标记. 复用开头读到的字节, 不二次读盘
	_, err = d.mc.PutObject(ctx, d.bucket, param.Slot.BackingResourceID+"/"+ManifestFileName,
		bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
			ContentType:  "application/yaml",
			CacheControl: CacheControlFor("entry"),
		})
	if err != nil {
		return classifyBucketErr(fmt.Errorf("上传清单失败: %w", err))
	}

	log.Info("静态制品上传完成", zap.Int("files", len(ordered)))
	return nil
}

func (d *BucketDriver) putFile(ctx context.Context, local, key, class string) error {
	f, err := os.Open(local)
	if err != nil {
		return pkgErrors.NewDeployError(false, err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return pkgErrors.NewDeployError(false, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(local))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = d.mc.PutObject(ctx, d.bucket, key, f, stat.Size(), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: CacheControlFor(class),
	})
	return err
}

// Ready 清单对象存在即视为就绪
func (d *BucketDriver) Ready(ctx context.Context, slot SlotRef) error {
	_, err := d.mc.StatObject(ctx, d.bucket, slot.BackingResourceID+"/"+ManifestFileName, minio.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("槽位 %s 制品未就绪: %w", slot.SlotName, err)
	}
	return nil
}

func (d *BucketDriver) SlotState(ctx context.Context, slot SlotRef) (SlotState, error) {
	routing, err := d.readRouting(ctx, slot.TargetName, slot.Environment)
	if err != nil {
		return SlotState{}, err
	}
	enabled, ok := routing.Enabled[slot.SlotName]
	if !ok {
		return SlotState{}, fmt.Errorf("路由对象中不存在槽位 %s", slot.SlotName)
	}
	return SlotState{Enabled: enabled, Weight: routing.Weights[slot.SlotName]}, nil
}

// SetWeights 整体覆写路由对象的权重, 保留启停状态
func (d *BucketDriver) SetWeights(ctx context.Context, targetName, environment string, weights map[string]int) error {
	routing, err := d.readRouting(ctx, targetName, environment)
	if err != nil {
		return err
	}
	routing.Weights = weights
	return d.writeRouting(ctx, targetName, environment, routing)
}

func (d *BucketDriver) SetEnabled(ctx context.Context, slot SlotRef, enabled bool) error {
	routing, err := d.readRouting(ctx, slot.TargetName, slot.Environment)
	if err != nil {
		return err
	}
	routing.Enabled[slot.SlotName] = enabled
	return d.writeRouting(ctx, slot.TargetName, slot.Environment, routing)
}

func routingKey(targetName, environment string) string {
	return fmt.Sprintf("routing/%s-%s.json", targetName, environment)
}

func (d *BucketDriver) readRouting(ctx context.Context, targetName, environment string) (*routingObject, error) {
	obj, err := d.mc.GetObject(ctx, d.bucket, routingKey(targetName, environment), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取路由对象失败: %w", err)
	}
	defer obj.Close()

	var routing routingObject
	if err := json.NewDecoder(obj).Decode(&routing); err != nil {
		return nil, fmt.Errorf("路由对象损坏: %w", err)
	}
	if routing.Weights == nil {
		routing.Weights = make(map[string]int)
	}
	if routing.Enabled == nil {
		routing.Enabled = make(map[string]bool)
	}
	return &routing, nil
}

func (d *BucketDriver) writeRouting(ctx context.Context, targetName, environment string, routing *routingObject) error {
	routing.UpdatedAt = time.Now()
	data, err := json.Marshal(routing)
	if err != nil {
		return err
	}
	// 路由对象必须禁缓存, 否则边缘切流滞后
	_, err = d.mc.PutObject(ctx, d.bucket, routingKey(targetName, environment),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:  "application/json",
			CacheControl: CacheControlFor("entry"),
		})
	if err != nil {
		return fmt.Errorf("写入路由对象失败: %w", err)
	}
	return nil
}

// classifyBucketErr 按对象存储错误码区分瞬时与永久失败
func classifyBucketErr(err error) error {
	var de *pkgErrors.DeployError
	if errors.As(err, &de) {
		return err
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		// 网络层错误没有错误码, 按瞬时处理
		return pkgErrors.NewDeployError(true, err)
	}
	switch resp.Code {
	case "AccessDenied", "NoSuchBucket", "InvalidArgument", "EntityTooLarge":
		return pkgErrors.NewDeployError(false, err)
	case "SlowDown", "InternalError", "RequestTimeout", "ServiceUnavailable":
		return pkgErrors.NewDeployError(true, err)
	default:
		return pkgErrors.NewDeployError(true, err)
	}
}
