package options

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/zqzqsb/hooksandbox/registry"
)

// Loader 加载一个插件文件，由 *registry.Registry 实现
type Loader interface {
	AddPlugin(path string) error
}

// ErrLibNotFound 在所有目录中都没有可加载的插件
var ErrLibNotFound = errors.New("library not found")

// LibraryFile 返回插件名在目录中对应的文件 dir/libNAME.so
func LibraryFile(dir, name string) string {
	return filepath.Join(dir, "lib"+name+".so")
}

// ResolveLibraries 按顺序加载每个插件，每个插件依次尝试所有目录，第一个加载成功的生效
// 插件初始化失败是致命错误，不会再尝试其它目录
func (o *Options) ResolveLibraries(l Loader, log zerolog.Logger) error {
	for _, name := range o.Libraries {
		if err := resolve(l, o.Paths, name, log); err != nil {
			return err
		}
	}
	return nil
}

func resolve(l Loader, paths []string, name string, log zerolog.Logger) error {
	for _, dir := range paths {
		file := LibraryFile(dir, name)
		log.Info().Str("file", file).Msg("checking library")
		if _, err := os.Stat(file); err != nil {
			continue
		}
		err := l.AddPlugin(file)
		if err == nil {
			log.Info().Str("file", file).Msg("library found")
			return nil
		}
		if errors.Is(err, registry.ErrInit) {
			return err
		}
		log.Warn().Err(err).Str("file", file).Msg("cannot load library")
	}
	return fmt.Errorf("%w: %s in %v", ErrLibNotFound, name, paths)
}
