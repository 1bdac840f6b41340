// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileStore writes the snapshot as indented JSON to a single file. Readers
// see either the previous document or the new one, never a partial write.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// SaveSnapshot replaces the file at the store path with snapshot.
func (s *FileStore) SaveSnapshot(ctx context.Context, snapshot *model.HealthSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling snapshot: %w", err)
	}

	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("error creating output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error creating temporary file in %s: %w", dir, err)
	}

	tmpName := tmp.Name()

	if err := writeAndClose(tmp, data); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error writing temporary file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error replacing %s: %w", s.path, err)
	}

	klog.V(1).Infof("Wrote snapshot to %s (%d bytes)", s.path, len(data))

	return nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err := f.Chmod(filePerm); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
