// Package http exposes the chat room service and the remote chat client as
// a JSON API.
//
// Every route except /healthz requires the host application to identify
// the caller with the X-User-Email header (and optionally X-User-Name).
// The router exposes the following endpoints:
//   - GET /rooms, POST /rooms: the caller's rooms, filtered by the name,
//     object_id, object_type and participant_email query parameters, and
//     idempotent room creation (201 when created, 200 when an existing room
//     matched).
//   - GET /rooms/search, GET /rooms/archived: remote room search and the
//     caller's archived rooms.
//   - GET /rooms/{id}, PATCH /rooms/{id}, DELETE /rooms/{id}: room details
//     with the remote view (last_n_messages), partial updates, and leaving.
//   - POST /chats, GET /chats/in-room, GET /chats/search and
//     GET/PATCH/DELETE /chats/{id}: messages. room_id always names a local
//     room the caller belongs to.
//   - GET /participants, POST /participants/by-ids,
//     POST /participants/by-emails, DELETE /participants: remote membership.
//   - POST /attachments, PATCH /attachments/{id},
//     POST /attachments/{id}/presigned-url, DELETE /attachments/{id}.
//   - GET /object-types, GET /object-types/{type}/{id}: the object registry.
//
// Request/response DTOs live alongside their respective handlers.
package http
