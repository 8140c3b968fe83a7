package imap

import (
	"fmt"
	"strconv"
	"strings"
)

// ThreadNode is one flattened thread node. Num is the message (0 for a
// placeholder root), Next the index of the node continuing this thread and
// Branch the index of the next sibling. 0 means none for both.
type ThreadNode struct {
	Num    int
	Next   int
	Branch int
}

// ThreadEntry is one "<index>.num|next|branch" item of a flattened thread.
type ThreadEntry struct {
	Key   string
	Value int
}

// Thread is a decoded THREAD reply.
type Thread struct {
	Nodes   []ThreadNode
	entries []ThreadEntry
}

// Entries returns the flat items in discovery order: for every node its
// num, then next, then branch, with the next subtree listed before branch.
func (t *Thread) Entries() []ThreadEntry {
	return t.entries
}

// Get returns the value of a key such as "0.next".
func (t *Thread) Get(key string) (int, bool) {
	for _, e := range t.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return 0, false
}

// Map returns the entries as an unordered map.
func (t *Thread) Map() map[string]int {
	m := make(map[string]int, len(t.entries))
	for _, e := range t.entries {
		m[e.Key] = e.Value
	}
	return m
}

// Len returns the number of nodes.
func (t *Thread) Len() int {
	return len(t.Nodes)
}

// threadNode is the linked form of a parsed reply: next continues the
// thread (first child), branch is the next sibling.
type threadNode struct {
	num    int
	next   *threadNode
	branch *threadNode
}

// threadFrame holds the state of one thread list level.
type threadFrame struct {
	ret      *threadNode
	last     *threadNode
	parent   *threadNode
	inThread bool
}

// attach links the tree of a nested list into f. Without a parent, the
// list hangs off a placeholder root.
func (f *threadFrame) attach(cur *threadNode) {
	if cur == nil {
		return
	}
	if f.parent != nil {
		f.parent.next = cur
		f.parent = cur
		return
	}
	dummy := &threadNode{}
	if f.last != nil {
		f.last.branch = dummy
	} else {
		f.ret = dummy
	}
	f.last = dummy
	dummy.next = cur
	f.parent = cur
}

func (f *threadFrame) add(cur *threadNode) {
	switch {
	case f.parent != nil:
		f.parent.next = cur
	case f.last != nil:
		f.last.branch = cur
		f.last = cur
	default:
		f.ret = cur
		f.last = cur
	}
	f.parent = cur
}

// parseThread parses thread lists such as "(2 4)(3 (5)(6))".
func parseThread(s string) (*threadNode, error) {
	frames := []*threadFrame{{}}
	pos := 0
	for pos < len(s) {
		f := frames[len(frames)-1]
		c := s[pos]

		if !f.inThread {
			switch {
			case c == '(':
				f.inThread = true
				pos++
			case len(frames) == 1 && c == ' ':
				pos++
			case len(frames) == 1:
				return nil, fmt.Errorf("unexpected %q at %d in thread reply", c, pos)
			default:
				frames = frames[:len(frames)-1]
				frames[len(frames)-1].attach(f.ret)
			}
			continue
		}

		switch {
		case c == ')':
			f.inThread = false
			f.parent = nil
			pos++
		case c == '(':
			frames = append(frames, &threadFrame{})
		case c == ' ':
			pos++
		case c >= '0' && c <= '9':
			end := pos
			for end < len(s) && s[end] >= '0' && s[end] <= '9' {
				end++
			}
			n, err := strconv.Atoi(s[pos:end])
			if err != nil || n == 0 {
				return nil, fmt.Errorf("invalid message number %q in thread reply", s[pos:end])
			}
			f.add(&threadNode{num: n})
			pos = end
		default:
			return nil, fmt.Errorf("unexpected %q at %d in thread reply", c, pos)
		}
	}

	// close nested lists that ended exactly at the end of input
	for len(frames) > 1 {
		f := frames[len(frames)-1]
		if f.inThread {
			break
		}
		frames = frames[:len(frames)-1]
		frames[len(frames)-1].attach(f.ret)
	}
	if len(frames) > 1 || frames[0].inThread {
		return nil, fmt.Errorf("unterminated thread reply %q", s)
	}
	return frames[0].ret, nil
}

type flattenFrame struct {
	node  *threadNode
	index int
	stage int
}

// flattenThread numbers nodes depth first: a node, its next subtree, then
// its branch subtree.
func flattenThread(root *threadNode) *Thread {
	t := &Thread{Nodes: make([]ThreadNode, 0), entries: make([]ThreadEntry, 0)}
	if root == nil {
		return t
	}

	emit := func(index int, field string, v int) {
		t.entries = append(t.entries, ThreadEntry{Key: strconv.Itoa(index) + "." + field, Value: v})
	}

	count := 0
	t.Nodes = append(t.Nodes, ThreadNode{Num: root.num})
	emit(0, "num", root.num)
	stack := []*flattenFrame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]

		var child *threadNode
		var field string
		switch f.stage {
		case 0:
			child, field = f.node.next, "next"
		case 1:
			child, field = f.node.branch, "branch"
		default:
			stack = stack[:len(stack)-1]
			continue
		}
		f.stage++

		if child == nil {
			emit(f.index, field, 0)
			continue
		}
		count++
		if field == "next" {
			t.Nodes[f.index].Next = count
		} else {
			t.Nodes[f.index].Branch = count
		}
		emit(f.index, field, count)
		t.Nodes = append(t.Nodes, ThreadNode{Num: child.num})
		emit(count, "num", child.num)
		stack = append(stack, &flattenFrame{node: child, index: count})
	}
	return t
}

// DecodeThread decodes a THREAD response, either the full "* THREAD ..."
// untagged data or the bare thread lists. An empty reply gives an empty
// Thread.
func DecodeThread(reply string) (*Thread, error) {
	data := strings.TrimSpace(reply)
	for _, line := range strings.Split(reply, nl) {
		if u, ok := parseUntagged(line); ok && u.Name == "THREAD" {
			data = strings.TrimSpace(u.Rest)
			break
		}
	}
	if strings.HasPrefix(data, "*") {
		return flattenThread(nil), nil
	}

	root, err := parseThread(data)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: "thread", Err: err}
	}
	return flattenThread(root), nil
}
