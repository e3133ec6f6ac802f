package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/example/chatrooms/internal/chatclient"
)

type execFunc = func(ctx context.Context, client *chatclient.Client, args []string, out io.Writer) error

func parseUUIDFlag(name, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", name)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}

func roomsCommand(fs *pflag.FlagSet) execFunc {
	name := fs.String("name", "", "room name substring")
	email := fs.String("email", "", "participant email")
	return func(ctx context.Context, client *chatclient.Client, _ []string, out io.Writer) error {
		page, err := client.SearchRooms(ctx, chatclient.SearchRoomsOptions{Name: *name, ParticipantEmail: *email})
		if err != nil {
			return err
		}
		return printJSON(out, page)
	}
}

func roomCommand(fs *pflag.FlagSet) execFunc {
	participant := fs.String("participant", "", "participant id the room is viewed as")
	lastN := fs.Int("last", 0, "include the last N messages")
	return func(ctx context.Context, client *chatclient.Client, args []string, out io.Writer) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: chatctl room <room-id> --participant <id>")
		}
		roomID, err := parseUUIDFlag("room", args[0])
		if err != nil {
			return err
		}
		participantID, err := parseUUIDFlag("participant", *participant)
		if err != nil {
			return err
		}
		opts := chatclient.GetRoomOptions{ParticipantID: participantID}
		if fs.Changed("last") {
			opts.LastNMessages = lastN
		}
		room, err := client.GetRoom(ctx, roomID, opts)
		if err != nil {
			return err
		}
		return printJSON(out, room)
	}
}

func unreadCommand(fs *pflag.FlagSet) execFunc {
	participant := fs.String("participant", "", "participant id")
	neverOpened := fs.Bool("never-opened", false, "list rooms the participant has never opened instead")
	return func(ctx context.Context, client *chatclient.Client, _ []string, out io.Writer) error {
		participantID, err := parseUUIDFlag("participant", *participant)
		if err != nil {
			return err
		}
		var page chatclient.Page[chatclient.Room]
		if *neverOpened {
			page, err = client.GetRoomsNeverOpened(ctx, participantID, chatclient.ListOptions{})
		} else {
			page, err = client.GetUnreadMessages(ctx, participantID, chatclient.ListOptions{})
		}
		if err != nil {
			return err
		}
		return printJSON(out, page)
	}
}

func postCommand(fs *pflag.FlagSet) execFunc {
	room := fs.String("room", "", "room id")
	participant := fs.String("participant", "", "author participant id")
	content := fs.String("content", "", "message text")
	return func(ctx context.Context, client *chatclient.Client, _ []string, out io.Writer) error {
		roomID, err := parseUUIDFlag("room", *room)
		if err != nil {
			return err
		}
		participantID, err := parseUUIDFlag("participant", *participant)
		if err != nil {
			return err
		}
		chat, err := client.CreateChat(ctx, chatclient.ChatInput{Content: *content, RoomID: roomID, ParticipantID: participantID})
		if err != nil {
			return err
		}
		return printJSON(out, chat)
	}
}

func tokenCommand(fs *pflag.FlagSet) execFunc {
	participant := fs.String("participant", "", "participant id")
	return func(ctx context.Context, client *chatclient.Client, _ []string, out io.Writer) error {
		participantID, err := parseUUIDFlag("participant", *participant)
		if err != nil {
			return err
		}
		p, err := client.GenerateParticipantToken(ctx, participantID)
		if err != nil {
			return err
		}
		return printJSON(out, p)
	}
}

// uploadCommand creates the attachment record, then sends the file to the
// presigned storage URL it returns.
func uploadCommand(fs *pflag.FlagSet) execFunc {
	participant := fs.String("participant", "", "uploading participant id")
	file := fs.String("file", "", "path of the file to upload")
	return func(ctx context.Context, client *chatclient.Client, _ []string, out io.Writer) error {
		participantID, err := parseUUIDFlag("participant", *participant)
		if err != nil {
			return err
		}
		if *file == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}

		filename := filepath.Base(*file)
		attachments, err := client.CreateAttachments(ctx, []chatclient.AttachmentInput{{
			Filename:      filename,
			MimeType:      mimetype.Detect(data).String(),
			ParticipantID: participantID,
		}})
		if err != nil {
			return err
		}
		if len(attachments) != 1 || attachments[0].PresignedData == nil {
			return fmt.Errorf("chat service returned no upload descriptor for %s", filename)
		}

		attachment := attachments[0]
		if err := client.UploadToPresigned(ctx, *attachment.PresignedData, filename, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("upload %s: %w", filename, err)
		}
		attachment.PresignedData = nil
		return printJSON(out, attachment)
	}
}
