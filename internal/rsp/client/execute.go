package client

import (
	"context"

	rsperr "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/rsp/codec"
)

// Execute sends an opaque command such as "qRcmd,..." or "vFlashDone" and
// returns any console output it produced. OK succeeds. Console output is
// collected until the server stays quiet for the console timeout; an
// error frame among it fails the command. Any other reply means the
// command is not supported and fails with BadResponse.
func (s *Session) Execute(ctx context.Context, cmd string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.SendCommand(cmd); err != nil {
		return nil, err
	}
	reply, err := s.ReceiveFrame(s.opts.RecvTimeout)
	if err != nil {
		return nil, err
	}

	switch codec.Classify(reply) {
	case codec.ResponseOK:
		return nil, nil
	case codec.ResponseError:
		return nil, s.fail(codec.CheckServerError(reply))
	case codec.ResponseConsole:
		return s.collectConsole(reply)
	}

	s.FlushUnsolicited()
	return nil, s.fail(rsperr.Newf(rsperr.KindBadResponse, "command %q not supported: %s", cmd, codec.Printable(reply)))
}

func (s *Session) collectConsole(first []byte) ([]string, error) {
	var lines []string
	frame := first
	for {
		switch codec.Classify(frame) {
		case codec.ResponseConsole:
			text, err := codec.DecodeConsole(frame)
			if err != nil {
				return lines, s.fail(err)
			}
			s.opts.Logger.Info("%s", text)
			lines = append(lines, text)
		case codec.ResponseError:
			return lines, s.fail(codec.CheckServerError(frame))
		case codec.ResponseOK:
			return lines, nil
		default:
			s.opts.Logger.Verbose("Unexpected message: %s", codec.Printable(frame))
		}

		next, err := s.ReceiveFrame(s.opts.ConsoleTimeout)
		if err != nil {
			if rsperr.KindOf(err) == rsperr.KindRecvTimeout {
				s.ResetError()
				return lines, nil
			}
			return lines, err
		}
		frame = next
	}
}
