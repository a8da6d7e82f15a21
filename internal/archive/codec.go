// Package archive seals files and directory trees for backups: tar, then
// zstd, then age with a scrypt passphrase. Every file it writes can be
// opened with the same passphrase and nothing else.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/klauspost/compress/zstd"
)

// Extension is appended to every sealed file name.
const Extension = ".tar.zst.age"

// DefaultWorkFactor is the scrypt log2 work factor for new archives.
const DefaultWorkFactor = 18

// maxOpenWorkFactor bounds what Open accepts, so a crafted archive cannot
// make decryption take hours.
const maxOpenWorkFactor = 22

// Codec seals and opens archives with one passphrase.
type Codec struct {
	passphrase string
	workFactor int
}

// NewCodec returns a codec for passphrase. An empty passphrase is a
// Validation error.
func NewCodec(passphrase string, workFactor int) (*Codec, error) {
	if passphrase == "" {
		return nil, svcerr.Newf(svcerr.Validation, "", "backup passphrase is empty")
	}
	if workFactor <= 0 {
		workFactor = DefaultWorkFactor
	}
	if workFactor > 30 {
		return nil, svcerr.Newf(svcerr.Validation, "", "scrypt work factor %d is out of range", workFactor)
	}
	return &Codec{passphrase: passphrase, workFactor: workFactor}, nil
}

// Seal wraps w so that everything written is compressed and encrypted.
// Closing the returned writer flushes both layers but does not close w.
func (c *Codec) Seal(w io.Writer) (io.WriteCloser, error) {
	recipient, err := age.NewScryptRecipient(c.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(c.workFactor)

	enc, err := age.Encrypt(w, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	zw, err := zstd.NewWriter(enc, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &sealWriter{zw: zw, enc: enc}, nil
}

type sealWriter struct {
	zw  *zstd.Encoder
	enc io.WriteCloser
}

func (s *sealWriter) Write(p []byte) (int, error) {
	return s.zw.Write(p)
}

func (s *sealWriter) Close() error {
	if err := s.zw.Close(); err != nil {
		s.enc.Close()
		return fmt.Errorf("finalizing zstd stream: %w", err)
	}
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	return nil
}

// Open returns the plaintext of a sealed stream.
func (c *Codec) Open(r io.Reader) (io.ReadCloser, error) {
	identity, err := age.NewScryptIdentity(c.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	identity.SetMaxWorkFactor(max(c.workFactor, maxOpenWorkFactor))

	dec, err := age.Decrypt(r, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, svcerr.New(svcerr.Validation, "", fmt.Errorf("decrypting: wrong passphrase: %w", err))
		}
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	zr, err := zstd.NewReader(dec)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return zr.IOReadCloser(), nil
}

// Create makes a new sealed file at path. The file must not exist. Closing
// the writer flushes, syncs and closes the file.
func (c *Codec) Create(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	w, err := c.Seal(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &fileSealer{WriteCloser: w, f: f}, nil
}

type fileSealer struct {
	io.WriteCloser
	f *os.File
}

func (fs *fileSealer) Close() error {
	if err := fs.WriteCloser.Close(); err != nil {
		fs.f.Close()
		return err
	}
	if err := fs.f.Sync(); err != nil {
		fs.f.Close()
		return fmt.Errorf("syncing %s: %w", fs.f.Name(), err)
	}
	return fs.f.Close()
}

// OpenFile returns the plaintext of the sealed file at path.
func (c *Codec) OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := c.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fileOpener{ReadCloser: r, f: f}, nil
}

type fileOpener struct {
	io.ReadCloser
	f *os.File
}

func (fo *fileOpener) Close() error {
	fo.ReadCloser.Close()
	return fo.f.Close()
}

// SealDir writes the tree under dir into a new sealed file at path.
func (c *Codec) SealDir(dir, path string) error {
	w, err := c.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTar(w, dir); err != nil {
		w.Close()
		os.Remove(path)
		return err
	}
	if err := w.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// OpenDir extracts the sealed file at path into dir, creating dir if needed.
func (c *Codec) OpenDir(path, dir string) error {
	r, err := c.OpenFile(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return ExtractTar(r, dir)
}
