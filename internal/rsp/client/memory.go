package client

// Chunked target memory access

import (
	"context"
	"fmt"

	rsperr "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/rsp/codec"
)

// ReadMemory fills dst from target memory at addr in chunks of at most
// MaxReadChunk bytes. The first failing chunk aborts the read; dst is then
// partially written and must not be used. ctx is checked between chunks.
func (s *Session) ReadMemory(ctx context.Context, addr uint32, dst []byte) error {
	if len(dst) == 0 {
		return s.fail(rsperr.New(rsperr.KindBadInput, "read length is zero"))
	}
	if s.caps.MaxReadChunk <= 0 {
		return s.fail(rsperr.New(rsperr.KindBadInput, "read chunk size not negotiated"))
	}

	total := len(dst)
	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}
		n := min(total-done, s.caps.MaxReadChunk)
		chunkAddr := addr + uint32(done)
		if err := s.readChunk(chunkAddr, dst[done:done+n]); err != nil {
			return fmt.Errorf("read %d bytes at 0x%08X: %w", n, chunkAddr, err)
		}
		done += n
		if s.opts.Progress != nil {
			s.opts.Progress(done, total)
		}
	}
	return nil
}

func (s *Session) readChunk(addr uint32, dst []byte) error {
	n := len(dst)
	if 2*n+codec.FrameOverhead > codec.MaxFrameSize {
		return s.fail(rsperr.Newf(rsperr.KindBadInput, "read of %d bytes exceeds frame limit", n))
	}
	if err := s.SendCommand(codec.ReadMemoryCommand(addr, n)); err != nil {
		return err
	}
	reply, err := s.ReceiveFrame(s.opts.RecvTimeout)
	if err != nil {
		return err
	}
	data, err := codec.DecodeMemory(reply, n)
	if err != nil {
		return s.fail(err)
	}
	copy(dst, data)
	return nil
}

// WriteMemory stores data at addr in chunks of at most MaxWriteChunk bytes.
// Each chunk must be answered with OK.
func (s *Session) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 {
		return s.fail(rsperr.New(rsperr.KindBadInput, "write length is zero"))
	}
	if s.caps.MaxWriteChunk <= 0 {
		return s.fail(rsperr.New(rsperr.KindBadInput, "write chunk size not negotiated"))
	}

	total := len(data)
	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}
		n := min(total-done, s.caps.MaxWriteChunk)
		chunkAddr := addr + uint32(done)
		if err := s.writeChunk(chunkAddr, data[done:done+n]); err != nil {
			return fmt.Errorf("write %d bytes at 0x%08X: %w", n, chunkAddr, err)
		}
		done += n
	}
	return nil
}

func (s *Session) writeChunk(addr uint32, data []byte) error {
	if err := s.sendFrame(codec.WriteMemoryFrame(addr, data)); err != nil {
		return err
	}
	reply, err := s.ReceiveFrame(s.opts.RecvTimeout)
	if err != nil {
		return err
	}
	if codec.IsOK(reply) {
		return nil
	}
	if err := codec.CheckServerError(reply); err != nil {
		return s.fail(err)
	}
	return s.fail(rsperr.Newf(rsperr.KindBadResponse, "unexpected reply to memory write: %s", codec.Printable(reply)))
}
