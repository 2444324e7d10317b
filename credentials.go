package svcinit

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"strconv"
)

// Credential is a resolved process identity.
type Credential struct {
	// User and Group are the configured names
	User  string
	Group string
	// Uid and Gid are the numeric ids switched to in the child
	Uid uint32
	Gid uint32
	// Groups are the supplementary group ids
	Groups []uint32
}

// resolveCredential resolves userName and groupName to numeric ids. A group
// only applies together with a user; without a group the user's primary
// group is used. Every failure is logged as ErrCredential and nil is
// returned, so the process keeps the supervisor's identity.
func resolveCredential(userName, groupName string, logger *slog.Logger) *Credential {
	if userName == "" {
		if groupName != "" {
			logger.Warn("group ignored without a user", "group", groupName)
		}
		return nil
	}

	u, err := lookupUser(userName)
	if err != nil {
		logger.Error("user does not exist", "user", userName, "err", fmt.Errorf("%w: %w", ErrCredential, err))
		return nil
	}

	uid, err := parseID(u.Uid)
	if err != nil {
		logger.Error("unusable uid", "user", userName, "err", fmt.Errorf("%w: %w", ErrCredential, err))
		return nil
	}
	gid, err := parseID(u.Gid)
	if err != nil {
		logger.Error("unusable gid", "user", userName, "err", fmt.Errorf("%w: %w", ErrCredential, err))
		return nil
	}

	cred := &Credential{User: userName, Uid: uid, Gid: gid}

	if ids, err := u.GroupIds(); err != nil {
		logger.Debug("supplementary groups unavailable", "user", userName, "err", err)
	} else {
		for _, id := range ids {
			if g, err := parseID(id); err == nil {
				cred.Groups = append(cred.Groups, g)
			}
		}
	}

	if groupName != "" {
		g, err := lookupGroup(groupName)
		if err != nil {
			logger.Error("group does not exist", "group", groupName, "err", fmt.Errorf("%w: %w", ErrCredential, err))
			return cred
		}
		id, err := parseID(g.Gid)
		if err != nil {
			logger.Error("unusable gid", "group", groupName, "err", fmt.Errorf("%w: %w", ErrCredential, err))
			return cred
		}
		cred.Group = groupName
		cred.Gid = id
	}

	return cred
}

// lookupUser accepts a name or, failing that, a numeric uid.
func lookupUser(name string) (*user.User, error) {
	u, err := user.Lookup(name)
	var unknown user.UnknownUserError
	if errors.As(err, &unknown) {
		if _, perr := strconv.ParseUint(name, 10, 32); perr == nil {
			return user.LookupId(name)
		}
	}
	return u, err
}

// lookupGroup accepts a name or, failing that, a numeric gid.
func lookupGroup(name string) (*user.Group, error) {
	g, err := user.LookupGroup(name)
	var unknown user.UnknownGroupError
	if errors.As(err, &unknown) {
		if _, perr := strconv.ParseUint(name, 10, 32); perr == nil {
			return user.LookupGroupId(name)
		}
	}
	return g, err
}

func parseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
