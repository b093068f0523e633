package vbus

import (
	"fmt"
	"sort"
	"strings"
)

// Signature summarizes a batch of frames as source -> destination ->
// distinct commands. Two batches carrying the same packet types have equal
// signatures regardless of payload.
type Signature map[string]map[string][]string

// SignatureOf builds the signature of frames. Frames too short to carry a
// header are left out.
func SignatureOf(frames []RawFrame) Signature {
	sig := Signature{}
	for _, f := range frames {
		h, err := DecodeHeader(f)
		if err != nil {
			continue
		}
		sig.add(h)
	}
	return sig
}

func (s Signature) add(h Header) {
	src, dst, cmd := h.SourceString(), h.DestinationString(), h.CommandString()
	dests, ok := s[src]
	if !ok {
		dests = map[string][]string{}
		s[src] = dests
	}
	cmds := dests[dst]
	i := sort.SearchStrings(cmds, cmd)
	if i < len(cmds) && cmds[i] == cmd {
		return
	}
	cmds = append(cmds, "")
	copy(cmds[i+1:], cmds[i:])
	cmds[i] = cmd
	dests[dst] = cmds
}

// Empty reports whether the signature holds no packets.
func (s Signature) Empty() bool { return len(s) == 0 }

// Equal reports whether s and o describe the same packet types.
func (s Signature) Equal(o Signature) bool {
	if len(s) != len(o) {
		return false
	}
	for src, dests := range s {
		odests, ok := o[src]
		if !ok || len(dests) != len(odests) {
			return false
		}
		for dst, cmds := range dests {
			ocmds, ok := odests[dst]
			if !ok || len(cmds) != len(ocmds) {
				return false
			}
			for i := range cmds {
				if cmds[i] != ocmds[i] {
					return false
				}
			}
		}
	}
	return true
}

func (s Signature) String() string {
	srcs := make([]string, 0, len(s))
	for src := range s {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)

	var b strings.Builder
	b.WriteByte('{')
	for i, src := range srcs {
		if i > 0 {
			b.WriteString(", ")
		}
		dsts := make([]string, 0, len(s[src]))
		for dst := range s[src] {
			dsts = append(dsts, dst)
		}
		sort.Strings(dsts)
		fmt.Fprintf(&b, "%s: {", src)
		for j, dst := range dsts {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: [%s]", dst, strings.Join(s[src][dst], " "))
		}
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.String()
}
