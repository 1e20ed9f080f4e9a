package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Snapshot binary layout (little-endian):
//
//	magic "GWVI" | version u32 | model len u32 + bytes | dim u32 | rows u32
//	per row: id len u32 + bytes | dead u8 | dim * f32
var snapshotMagic = [4]byte{'G', 'W', 'V', 'I'}

const snapshotVersion = 1

const maxSnapshotIDLen = 4096

// Save writes the index to path atomically: the snapshot is written to a
// temp file in the same directory, synced, then renamed over the target.
// A crash mid-save leaves the previous snapshot intact.
func (f *Flat) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if err := f.writeSnapshot(w); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (f *Flat) writeSnapshot(w io.Writer) error {
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return err
	}
	if err := writeU32(w, snapshotVersion); err != nil {
		return err
	}
	if err := writeString(w, f.model); err != nil {
		return err
	}
	if err := writeU32(w, uint32(f.dim)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(f.ids))); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for row, id := range f.ids {
		if err := writeString(w, id); err != nil {
			return err
		}
		var dead byte
		if f.dead[row] {
			dead = 1
		}
		if _, err := w.Write([]byte{dead}); err != nil {
			return err
		}
		for _, x := range f.vectors[row*f.dim : (row+1)*f.dim] {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads a snapshot and verifies it was built with the expected model and
// dimension, failing with ErrIncompatibleIndex on any mismatch. A missing
// file is reported as-is so callers can treat it as "run ingestion first".
func Load(path, model string, dim int) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w: %w", err, domain.ErrIncompatibleIndex)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("bad magic %q: %w", magic[:], domain.ErrIncompatibleIndex)
	}

	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d: %w", version, domain.ErrIncompatibleIndex)
	}

	storedModel, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	if storedModel != model {
		return nil, fmt.Errorf("snapshot built with model %q, configured %q: %w",
			storedModel, model, domain.ErrIncompatibleIndex)
	}

	storedDim, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if int(storedDim) != dim {
		return nil, fmt.Errorf("snapshot has dimension %d, configured %d: %w",
			storedDim, dim, domain.ErrIncompatibleIndex)
	}

	rows, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read row count: %w", err)
	}

	f, err := New(model, dim)
	if err != nil {
		return nil, err
	}

	vecBuf := make([]byte, dim*4)
	for i := uint32(0); i < rows; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read row %d id: %w", i, err)
		}
		deadByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read row %d tombstone: %w", i, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, fmt.Errorf("read row %d vector: %w", i, err)
		}

		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(vecBuf[j*4:]))
		}

		row := len(f.ids)
		f.vectors = append(f.vectors, vec...)
		f.ids = append(f.ids, id)
		dead := deadByte == 1
		f.dead = append(f.dead, dead)
		if !dead {
			f.rowByID[id] = row
			f.live++
		}
	}

	return f, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if n > maxSnapshotIDLen {
		return "", fmt.Errorf("string length %d exceeds limit: %w", n, domain.ErrIncompatibleIndex)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
