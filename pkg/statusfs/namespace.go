package statusfs

import (
	"errors"
	"strings"
	"sync"

	"git.sr.ht/~moody/ninep"
)

var (
	errNoRoot = errors.New("no root directory")
	errNoFile = errors.New("no such file or directory")
	errNoDir  = errors.New("not a directory")
	errNoAbs  = errors.New("no absolute path")
	errExists = errors.New("file exists")
)

// File produces the content of a synthetic file on every read.
type File interface {
	Read() ([]byte, error)
}

// FuncFile adapts a function to File.
type FuncFile func() ([]byte, error)

func (f FuncFile) Read() ([]byte, error) { return f() }

// Entry is a node of the namespace. Directories have children, files have
// an implementation.
type Entry struct {
	ref      *ninep.Dir
	children map[string]*Entry
	file     File
}

func (e *Entry) IsDir() bool {
	return e.children != nil
}

func (e *Entry) Name() string {
	return e.ref.Name
}

// Namespace is a read-only synthetic file tree served over 9P.
type Namespace struct {
	ninep.NopFS

	user  string
	group string

	mu   sync.RWMutex
	dict map[uint64]*Entry
	next uint64
}

// NewNamespace creates a namespace with an empty root directory owned by
// user and group.
func NewNamespace(user, group string, perm uint32) *Namespace {
	ns := &Namespace{user: user, group: group, dict: make(map[uint64]*Entry)}
	root := ns.newEntry("/", perm, nil)
	ns.dict[root.ref.Path] = root
	return ns
}

func (ns *Namespace) newEntry(name string, perm uint32, impl File) *Entry {
	e := &Entry{file: impl}
	kind := ninep.QTFile
	if impl == nil {
		kind = ninep.QTDir
		e.children = make(map[string]*Entry)
		perm |= ninep.DMDir
	}
	e.ref = &ninep.Dir{
		Qid: ninep.Qid{
			Path: ns.next,
			Type: byte(kind),
		},
		Name: name,
		Mode: perm,
		Uid:  ns.user,
		Gid:  ns.group,
		Muid: ns.user,
	}
	ns.next++
	return e
}

func (ns *Namespace) Root() *Entry {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.dict[0]
}

// Get resolves an absolute path.
func (ns *Namespace) Get(path string) (*Entry, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errNoAbs
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	curr := ns.dict[0]
	for _, label := range strings.Split(path[1:], "/") {
		if label == "" {
			continue
		}
		if curr.children == nil {
			return nil, errNoDir
		}
		next, ok := curr.children[label]
		if !ok {
			return nil, errNoFile
		}
		curr = next
	}
	return curr, nil
}

// AddFile creates a read-only file under the directory at parent.
func (ns *Namespace) AddFile(parent, name string, perm uint32, impl File) error {
	return ns.add(parent, name, perm, impl)
}

// AddDir creates a directory under the directory at parent.
func (ns *Namespace) AddDir(parent, name string, perm uint32) error {
	return ns.add(parent, name, perm, nil)
}

func (ns *Namespace) add(parent, name string, perm uint32, impl File) error {
	dir, err := ns.Get(parent)
	if err != nil {
		return err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if dir.children == nil {
		return errNoDir
	}
	if _, ok := dir.children[name]; ok {
		return errExists
	}
	child := ns.newEntry(name, perm, impl)
	dir.children[name] = child
	ns.dict[child.ref.Path] = child
	return nil
}

func (ns *Namespace) lookup(path uint64) (*Entry, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	e, ok := ns.dict[path]
	return e, ok
}

// Attach hands out the root.
func (ns *Namespace) Attach(t *ninep.Tattach) {
	if e, ok := ns.lookup(0); ok {
		t.Respond(&e.ref.Qid)
	} else {
		t.Err(errNoRoot)
	}
}

func (ns *Namespace) Walk(cur *ninep.Qid, next string) *ninep.Qid {
	e, ok := ns.lookup(cur.Path)
	if !ok {
		return nil
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if c, ok := e.children[next]; ok {
		return &c.ref.Qid
	}
	return nil
}

func (ns *Namespace) Open(t *ninep.Topen, q *ninep.Qid) {
	t.Respond(q, 8192)
}

// Read lists a directory or renders a file.
func (ns *Namespace) Read(t *ninep.Tread, q *ninep.Qid) {
	e, ok := ns.lookup(q.Path)
	if !ok {
		t.Err(errNoFile)
		return
	}
	if e.IsDir() {
		ninep.ReadDir(t, ns.listing(e))
		return
	}
	data, err := e.file.Read()
	if err != nil {
		t.Err(err)
		return
	}
	ninep.ReadBuf(t, data)
}

func (ns *Namespace) Stat(t *ninep.Tstat, q *ninep.Qid) {
	e, ok := ns.lookup(q.Path)
	if !ok {
		t.Err(errNoFile)
		return
	}
	t.Respond(e.ref)
}

func (ns *Namespace) listing(e *Entry) []ninep.Dir {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	kids := make([]ninep.Dir, 0, len(e.children))
	for _, c := range e.children {
		kids = append(kids, *c.ref)
	}
	return kids
}
