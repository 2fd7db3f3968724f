// Package drivetest provides an in-memory drive.Client.
package drivetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/models"
)

// Move records one performed MoveFile call.
type Move struct {
	FileID string
	From   string
	To     string
}

// Fake keeps a folder tree in memory. Failures can be injected per
// operation with FailOn.
type Fake struct {
	mu sync.Mutex

	nextID  int
	files   map[string]*drive.File
	content map[string][]byte

	failures map[string][]error
	failFn   func(op, subject string) error

	FoldersCreated int
	Uploads        int
	Moves          []Move
}

func New() *Fake {
	f := &Fake{
		files:    make(map[string]*drive.File),
		content:  make(map[string][]byte),
		failures: make(map[string][]error),
	}
	f.files["root"] = &drive.File{ID: "root", Name: "root", MimeType: drive.FolderMimeType}
	return f
}

// FailOn queues err to be returned by the next call of op
// ("create_folder", "list_children", "move_file", "upload_file",
// "delete_file", "get_file"). Errors are consumed in order.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// FailWhen installs a predicate consulted on every call; subject is the
// file name for uploads and folder creation, otherwise the file id.
func (f *Fake) FailWhen(fn func(op, subject string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFn = fn
}

func (f *Fake) fail(op, subject string) error {
	if queue := f.failures[op]; len(queue) > 0 {
		err := queue[0]
		f.failures[op] = queue[1:]
		return err
	}
	if f.failFn != nil {
		if err := f.failFn(op, subject); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// PutFile seeds a file directly into folderID without counting as an upload.
func (f *Fake) PutFile(name, folderID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newID("file")
	f.files[id] = &drive.File{ID: id, Name: name, MimeType: "application/octet-stream", Parents: []string{folderID}}
	return id
}

// Lookup returns a copy of the stored file metadata.
func (f *Fake) Lookup(id string) (drive.File, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return drive.File{}, false
	}
	return copyFile(file), true
}

// Content returns the bytes uploaded for id.
func (f *Fake) Content(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content[id]
}

func copyFile(file *drive.File) drive.File {
	out := *file
	out.Parents = append([]string(nil), file.Parents...)
	return out
}

func (f *Fake) CreateFolder(_ context.Context, _ *models.ProviderConfig, name, parentID string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_folder", name); err != nil {
		return nil, err
	}
	if _, ok := f.files[parentID]; !ok {
		return nil, drive.NewError("create_folder", drive.KindNotFound, fmt.Errorf("parent %s not found", parentID))
	}
	id := f.newID("folder")
	folder := &drive.File{ID: id, Name: name, MimeType: drive.FolderMimeType, Parents: []string{parentID}}
	f.files[id] = folder
	f.FoldersCreated++
	out := copyFile(folder)
	return &out, nil
}

func (f *Fake) ListChildren(_ context.Context, _ *models.ProviderConfig, folderID string) ([]drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("list_children", folderID); err != nil {
		return nil, err
	}
	if _, ok := f.files[folderID]; !ok {
		return nil, drive.NewError("list_children", drive.KindNotFound, fmt.Errorf("folder %s not found", folderID))
	}
	var out []drive.File
	for _, file := range f.files {
		if file.InFolder(folderID) {
			out = append(out, copyFile(file))
		}
	}
	return out, nil
}

func (f *Fake) MoveFile(_ context.Context, _ *models.ProviderConfig, fileID, fromID, toID string) error {
	if fromID == toID {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("move_file", fileID); err != nil {
		return err
	}
	file, ok := f.files[fileID]
	if !ok {
		return drive.NewError("move_file", drive.KindNotFound, fmt.Errorf("file %s not found", fileID))
	}
	parents := make([]string, 0, len(file.Parents))
	for _, p := range file.Parents {
		if p != fromID && p != toID {
			parents = append(parents, p)
		}
	}
	file.Parents = append(parents, toID)
	f.Moves = append(f.Moves, Move{FileID: fileID, From: fromID, To: toID})
	return nil
}

func (f *Fake) UploadFileFromBytes(_ context.Context, _ *models.ProviderConfig, data []byte, name, mimeType, folderID string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("upload_file", name); err != nil {
		return nil, err
	}
	if _, ok := f.files[folderID]; !ok {
		return nil, drive.NewError("upload_file", drive.KindNotFound, fmt.Errorf("folder %s not found", folderID))
	}
	id := f.newID("file")
	file := &drive.File{ID: id, Name: name, MimeType: mimeType, Parents: []string{folderID}, Size: int64(len(data))}
	f.files[id] = file
	f.content[id] = append([]byte(nil), data...)
	f.Uploads++
	out := copyFile(file)
	return &out, nil
}

func (f *Fake) DeleteFile(_ context.Context, _ *models.ProviderConfig, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("delete_file", fileID); err != nil {
		return err
	}
	if _, ok := f.files[fileID]; !ok {
		return drive.NewError("delete_file", drive.KindNotFound, fmt.Errorf("file %s not found", fileID))
	}
	delete(f.files, fileID)
	delete(f.content, fileID)
	return nil
}

func (f *Fake) GetFile(_ context.Context, _ *models.ProviderConfig, fileID string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("get_file", fileID); err != nil {
		return nil, err
	}
	file, ok := f.files[fileID]
	if !ok {
		return nil, drive.NewError("get_file", drive.KindNotFound, fmt.Errorf("file %s not found", fileID))
	}
	out := copyFile(file)
	return &out, nil
}

var _ drive.Client = (*Fake)(nil)
