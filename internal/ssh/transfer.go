// internal/ssh/transfer.go

package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/utils"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/pkg/sftp"
)

// FileTransfer obsługuje transfer plików przez istniejące połączenie SSH
type FileTransfer struct {
	conn *Connection
	mode string
}

// NewFileTransfer tworzy transfer w trybie sftp albo scp
func NewFileTransfer(conn *Connection, mode string) *FileTransfer {
	if mode == "" {
		mode = models.TransferSFTP
	}
	return &FileTransfer{conn: conn, mode: mode}
}

// Upload kopiuje lokalny plik na zdalną maszynę, zachowując uprawnienia
func (ft *FileTransfer) Upload(ctx context.Context, localPath, remotePath string) error {
	if !ft.conn.IsConnected() {
		return ft.conn.notConnected()
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return apperr.New(apperr.FileError, "failed to open local file", err)
	}
	defer localFile.Close()

	info, err := localFile.Stat()
	if err != nil {
		return apperr.New(apperr.FileError, "failed to get file info", err)
	}
	if info.IsDir() {
		return apperr.New(apperr.FileError, fmt.Sprintf("%s is a directory", localPath), nil)
	}

	remotePath = utils.ResolveUploadTarget(localPath, remotePath)
	ft.conn.logger.Info("Uploading file", "local", localPath, "remote", remotePath, "bytes", info.Size(), "mode", ft.mode)

	switch ft.mode {
	case models.TransferSCP:
		err = ft.uploadSCP(ctx, localFile, remotePath, info.Mode().Perm())
	default:
		err = ft.uploadSFTP(localFile, remotePath, info.Mode().Perm())
	}
	if err != nil {
		return apperr.New(apperr.TransferError, fmt.Sprintf("failed to upload %s to %s:%s", localPath, ft.conn.Name(), remotePath), err)
	}
	return nil
}

func (ft *FileTransfer) uploadSFTP(src io.Reader, remotePath string, perm os.FileMode) error {
	client, err := sftp.NewClient(ft.conn.Client())
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %v", err)
	}
	defer client.Close()

	dstFile, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %v", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, src); err != nil {
		return fmt.Errorf("error writing remote file: %v", err)
	}
	if err := dstFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set remote file mode: %v", err)
	}
	return nil
}

func (ft *FileTransfer) uploadSCP(ctx context.Context, src *os.File, remotePath string, perm os.FileMode) error {
	// Klienta scp nie zamykamy: Close zamknąłby współdzielone połączenie SSH
	client, err := scp.NewClientBySSH(ft.conn.Client())
	if err != nil {
		return fmt.Errorf("failed to create SCP client: %v", err)
	}
	return client.CopyFromFile(ctx, *src, remotePath, fmt.Sprintf("%04o", perm))
}

// Download zapisuje zawartość zdalnego pliku do w
func (ft *FileTransfer) Download(ctx context.Context, remotePath string, w io.Writer) error {
	if !ft.conn.IsConnected() {
		return ft.conn.notConnected()
	}

	var err error
	switch ft.mode {
	case models.TransferSCP:
		err = ft.downloadSCP(ctx, remotePath, w)
	default:
		err = ft.downloadSFTP(remotePath, w)
	}
	if err != nil {
		return apperr.New(apperr.TransferError, fmt.Sprintf("failed to download %s:%s", ft.conn.Name(), remotePath), err)
	}
	return nil
}

func (ft *FileTransfer) downloadSFTP(remotePath string, w io.Writer) error {
	client, err := sftp.NewClient(ft.conn.Client())
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %v", err)
	}
	defer client.Close()

	srcFile, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer srcFile.Close()

	if _, err := srcFile.WriteTo(w); err != nil {
		return fmt.Errorf("error reading remote file: %v", err)
	}
	return nil
}

func (ft *FileTransfer) downloadSCP(ctx context.Context, remotePath string, w io.Writer) error {
	client, err := scp.NewClientBySSH(ft.conn.Client())
	if err != nil {
		return fmt.Errorf("failed to create SCP client: %v", err)
	}
	return client.CopyFromRemotePassThru(ctx, w, remotePath, nil)
}

// FetchLog zwraca zawartość logu procesu uruchomionego w tle
func (ft *FileTransfer) FetchLog(ctx context.Context, name string) (string, error) {
	if !models.ValidLogName(name) {
		return "", apperr.New(apperr.ValidationError, fmt.Sprintf("invalid log name %q", name), nil)
	}

	var buf bytes.Buffer
	if err := ft.Download(ctx, LogPath(ft.conn.LogDir(), name), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
