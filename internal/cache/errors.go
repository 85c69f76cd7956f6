package cache

import "errors"

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrEmptyContent 表示试图写入空内容，不会产生任何文件。
	ErrEmptyContent = errors.New("cache content is empty")
	// ErrDirectoryCreateFailed 表示无法创建条目目录（权限或磁盘空间）。
	ErrDirectoryCreateFailed = errors.New("unable to create cache directory")
	// ErrWriteFailed 表示无法写入缓存文件。
	ErrWriteFailed = errors.New("unable to write cache file")
	// ErrInvalidPath 表示请求路径指向已存在的普通文件，疑似路径混淆。
	ErrInvalidPath = errors.New("cache path is not valid")
	// ErrUnsupportedContentType 表示文章片段缓存不处理该内容类型。
	ErrUnsupportedContentType = errors.New("content type has no article cache path")
)
