package store

import (
	"fmt"
	"strings"
)

// Key layout. Message keys sort by (timestamp, seq) so a prefix scan yields
// insertion order and a reverse scan yields newest-first:
//
//	conv:<convID>:meta                      conversation record
//	conv:<convID>:msg:<%020d ns>-<%06d>     message log entry
//	latest:msg:<msgID>                      latest version of a message
//	version:msg:<msgID>:<%020d ns>-<%06d>   edit/version history
//	joinreq:<convID>:<userID>:<reqID>       join-request rows

func convMetaKey(convID string) []byte {
	return []byte("conv:" + convID + ":meta")
}

func msgPrefix(convID string) []byte {
	return []byte("conv:" + convID + ":msg:")
}

// MsgKey builds the log key for a message from its store-assigned timestamp
// and sequence. Deterministic so in-place rewrites (reactions, edits) land on
// the original entry and never reorder the log.
func MsgKey(convID string, ts int64, seq uint64) ([]byte, error) {
	if convID == "" {
		return nil, fmt.Errorf("empty conversation id")
	}
	if strings.Contains(convID, ":") {
		return nil, fmt.Errorf("invalid conversation id %q", convID)
	}
	return []byte(fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, seq)), nil
}

func latestMsgKey(msgID string) []byte {
	return []byte("latest:msg:" + msgID)
}

func versionKey(msgID string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("version:msg:%s:%020d-%06d", msgID, ts, seq))
}

func joinReqPrefix(convID, userID string) []byte {
	p := "joinreq:" + convID + ":"
	if userID != "" {
		p += userID + ":"
	}
	return []byte(p)
}

func joinReqKey(convID, userID, reqID string) []byte {
	return []byte("joinreq:" + convID + ":" + userID + ":" + reqID)
}
