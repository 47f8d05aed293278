package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bluegreen-cd/pkg/constants"

	"gopkg.in/yaml.v3"
)

// ManifestFileName 制品目录下的清单文件名
const ManifestFileName = "manifest.yaml"

// ArtifactFile 制品清单中的单个文件
type ArtifactFile struct {
	Path  string `yaml:"path"`
	Class string `yaml:"class"` // immutable/entry
}

// ArtifactManifest 静态制品清单.
// immutable类文件带指纹可长缓存, entry类文件(入口html等)禁止缓存,
// 保证切流后客户端立即取到新入口.
type ArtifactManifest struct {
	Version string         `yaml:"version"`
	Files   []ArtifactFile `yaml:"files"`
}

// ParseManifest 解析并校验制品清单
func ParseManifest(data []byte) (*ArtifactManifest, error) {
	var m ArtifactManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析制品清单失败: %w", err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("制品清单缺少version字段")
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("制品清单files为空")
	}
	for i, f := range m.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("制品清单第%d个文件缺少path", i+1)
		}
		clean := filepath.Clean(f.Path)
		if filepath.IsAbs(f.Path) || clean != f.Path ||
			clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("制品清单路径非法: %s", f.Path)
		}
		switch f.Class {
		case constants.CacheClassImmutable, constants.CacheClassEntry:
		default:
			return nil, fmt.Errorf("制品清单文件 %s 的class非法: %s", f.Path, f.Class)
		}
	}
	return &m, nil
}

// LoadManifest 从制品目录读取清单
func LoadManifest(artifactPath string) (*ArtifactManifest, error) {
	data, err := os.ReadFile(filepath.Join(artifactPath, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("读取制品清单失败: %w", err)
	}
	return ParseManifest(data)
}

// CacheControlFor 按文件类别返回Cache-Control头
func CacheControlFor(class string) string {
	if class == constants.CacheClassImmutable {
		return constants.CacheControlImmutable
	}
	return constants.CacheControlEntry
}
