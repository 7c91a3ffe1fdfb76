// Package serverquery implements a client session for the TeamSpeak 3
// ServerQuery protocol.
//
// A [Session] owns exactly one connection.  Commands are serialised by
// an execution lock so at most one is ever in flight; notification
// lines that the server pushes in between are intercepted wherever
// they appear and handed to the registered [Handler] on a small worker
// pool, never mixed into a command's [Response].
//
//	s := serverquery.New(serverquery.Options{Logger: log})
//	if err := s.Open(ctx, "ts.example.net", 10011); err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.Login(ctx, "serveradmin", pass); err != nil {
//		return err
//	}
//	if err := s.SelectServer(ctx, 1); err != nil {
//		return err
//	}
//	clients, err := s.List(ctx, serverquery.ListClients, "-away")
//
// Commands that change which server or channel the session is on
// (use, clientmove, channeldelete) are refused by [Session.Execute] and
// must go through the typed methods, which keep [Session.Identity]
// consistent with what the server believes.
//
// While at least one event registration is active and no command is
// running, an idle poller drains lines the server sends on its own
// every [Options.PollInterval].
package serverquery
