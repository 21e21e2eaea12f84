package utils

import (
	"path"
	"path/filepath"
	"strings"
)

// ToRemotePath zamienia lokalną ścieżkę na format zdalny (zawsze "/")
func ToRemotePath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// ResolveUploadTarget zwraca docelową ścieżkę zdalną; cel zakończony "/" oznacza katalog
func ResolveUploadTarget(localPath, remotePath string) string {
	if remotePath == "" || strings.HasSuffix(remotePath, "/") {
		return path.Join(ToRemotePath(remotePath), filepath.Base(localPath))
	}
	return ToRemotePath(remotePath)
}

// LocalLogPath zwraca lokalną ścieżkę dla logu pobranego z maszyny
func LocalLogPath(dir, machine, name string) string {
	return filepath.Join(dir, machine+"-"+name+".log")
}
