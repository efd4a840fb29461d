// Package drive holds the closed catalog of Google Drive v3 operations and
// the client that executes them.
package drive

import (
	"net/http"

	"github.com/goliatone/go-drive-gateway/core"
)

const (
	ScopeDrive             = core.DriveScope
	ScopeDriveFile         = "https://www.googleapis.com/auth/drive.file"
	ScopeDriveReadonly     = "https://www.googleapis.com/auth/drive.readonly"
	ScopeDriveMetadataRead = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

var (
	PermissionRoles = []string{"owner", "organizer", "fileOrganizer", "writer", "commenter", "reader"}
	PermissionTypes = []string{"user", "group", "domain", "anyone"}

	readScopes  = []string{ScopeDrive, ScopeDriveFile, ScopeDriveReadonly, ScopeDriveMetadataRead}
	writeScopes = []string{ScopeDrive, ScopeDriveFile}
	adminScopes = []string{ScopeDrive}
)

const (
	fileFields       = "id,name,mimeType,parents,driveId,size,createdTime,modifiedTime,trashed,starred,webViewLink"
	permissionFields = "id,type,role,emailAddress,domain,displayName,photoLink,deleted,pendingOwner,expirationTime"
	sharedDriveField = "id,name,colorRgb,backgroundImageFile,capabilities,createdTime,hidden"
	commentFields    = "id,content,author(displayName,emailAddress),createdTime,modifiedTime,resolved,deleted,anchor"
	revisionFields   = "id,mimeType,modifiedTime,keepForever,published,size,lastModifyingUser(displayName,emailAddress)"
	changeFields     = "changeType,time,removed,fileId,driveId,file(id,name,mimeType,trashed)"
)

func pathString(name string, description string) param {
	return param{in: inPath, spec: core.FieldSpec{Name: name, Type: core.FieldString, Required: true, Description: description}}
}

func queryString(name string, description string) param {
	return param{in: inQuery, spec: core.FieldSpec{Name: name, Type: core.FieldString, Description: description}}
}

func queryBool(name string, description string) param {
	return param{in: inQuery, spec: core.FieldSpec{Name: name, Type: core.FieldBoolean, Description: description}}
}

func bodyField(name string, kind core.FieldType, description string) param {
	return param{in: inBody, spec: core.FieldSpec{Name: name, Type: kind, Description: description}}
}

func required(p param) param {
	p.spec.Required = true
	return p
}

func enum(p param, values []string) param {
	p.spec.Enum = append([]string(nil), values...)
	return p
}

var (
	fileID       = pathString("fileId", "The ID of the file or shared drive.")
	permissionID = pathString("permissionId", "The ID of the permission.")
	driveID      = pathString("driveId", "The ID of the shared drive.")
	commentID    = pathString("commentId", "The ID of the comment.")
	revisionID   = pathString("revisionId", "The ID of the revision.")
	domainAdmin  = queryBool("useDomainAdminAccess", "Issue the request as a domain administrator.")
	expansive    = queryBool("enforceExpansiveAccess", "Enforce expansive access rules for limited-access folders.")
)

func catalog() []operation {
	return []operation{
		{
			name:        "drive_about_get",
			description: "Gets information about the user, the user's Drive and system capabilities",
			method:      http.MethodGet,
			path:        "/about",
			fields:      "user,storageQuota,maxUploadSize,canCreateDrives",
			idempotent:  true,
			scopes:      readScopes,
		},

		{
			name:        "drive_files_list",
			description: "Lists or searches files",
			method:      http.MethodGet,
			path:        "/files",
			params: []param{
				queryString("q", "Drive search query."),
				queryString("orderBy", "Comma-separated sort keys."),
				queryString("spaces", "Spaces to query: drive, appDataFolder."),
				queryString("corpora", "Bodies of items to query: user, domain, drive, allDrives."),
				queryString("driveId", "Shared drive to search."),
				queryBool("includeItemsFromAllDrives", "Include items from shared drives."),
			},
			collection: "files",
			fields:     "nextPageToken,incompleteSearch,files(" + fileFields + ")",
			idempotent: true,
			scopes:     readScopes,
			allDrives:  true,
		},
		{
			name:        "drive_files_get",
			description: "Gets a file's metadata by ID",
			method:      http.MethodGet,
			path:        "/files/{fileId}",
			params:      []param{fileID, queryBool("acknowledgeAbuse", "Acknowledge the risk of downloading flagged content.")},
			fields:      fileFields,
			idempotent:  true,
			scopes:      readScopes,
			allDrives:   true,
		},
		{
			name:        "drive_files_create",
			description: "Creates a file or folder from metadata",
			method:      http.MethodPost,
			path:        "/files",
			params: []param{
				required(bodyField("name", core.FieldString, "The name of the file.")),
				bodyField("mimeType", core.FieldString, "MIME type; application/vnd.google-apps.folder creates a folder."),
				bodyField("parents", core.FieldArray, "Parent folder IDs."),
				bodyField("description", core.FieldString, "A short description of the file."),
			},
			fields:      fileFields,
			scopes:      writeScopes,
			allDrives:   true,
			requestBody: true,
		},
		{
			name:        "drive_files_update",
			description: "Updates a file's metadata",
			method:      http.MethodPatch,
			path:        "/files/{fileId}",
			params: []param{
				fileID,
				bodyField("name", core.FieldString, "The new name of the file."),
				bodyField("description", core.FieldString, "The new description."),
				bodyField("starred", core.FieldBoolean, "Whether the user has starred the file."),
				bodyField("trashed", core.FieldBoolean, "Whether the file is in the trash."),
				queryString("addParents", "Comma-separated parent IDs to add."),
				queryString("removeParents", "Comma-separated parent IDs to remove."),
			},
			fields:      fileFields,
			idempotent:  true,
			scopes:      writeScopes,
			allDrives:   true,
			requestBody: true,
		},
		{
			name:        "drive_files_copy",
			description: "Creates a copy of a file",
			method:      http.MethodPost,
			path:        "/files/{fileId}/copy",
			params: []param{
				fileID,
				bodyField("name", core.FieldString, "The name of the copy."),
				bodyField("parents", core.FieldArray, "Parent folder IDs for the copy."),
			},
			fields:      fileFields,
			scopes:      writeScopes,
			allDrives:   true,
			requestBody: true,
		},
		{
			name:        "drive_files_delete",
			description: "Permanently deletes a file without moving it to the trash",
			method:      http.MethodDelete,
			path:        "/files/{fileId}",
			params:      []param{fileID},
			scopes:      writeScopes,
			allDrives:   true,
			deleted:     []string{"fileId"},
		},

		{
			name:        "drive_permissions_list",
			description: "Lists permissions for a file or shared drive",
			method:      http.MethodGet,
			path:        "/files/{fileId}/permissions",
			params:      []param{fileID, domainAdmin, queryString("includePermissionsForView", "Include additional permissions; only published is supported.")},
			collection:  "permissions",
			fields:      "nextPageToken,permissions(" + permissionFields + ")",
			idempotent:  true,
			scopes:      readScopes,
			allDrives:   true,
		},
		{
			name:        "drive_permissions_get",
			description: "Gets a permission by ID",
			method:      http.MethodGet,
			path:        "/files/{fileId}/permissions/{permissionId}",
			params:      []param{fileID, permissionID, domainAdmin},
			fields:      permissionFields,
			idempotent:  true,
			scopes:      readScopes,
			allDrives:   true,
		},
		{
			name:        "drive_permissions_create",
			description: "Creates a permission for a file or shared drive",
			method:      http.MethodPost,
			path:        "/files/{fileId}/permissions",
			params: []param{
				fileID,
				required(enum(bodyField("role", core.FieldString, "The role granted by this permission."), PermissionRoles)),
				required(enum(bodyField("type", core.FieldString, "The type of the grantee."), PermissionTypes)),
				bodyField("emailAddress", core.FieldString, "Email address when type is user or group."),
				bodyField("domain", core.FieldString, "Domain when type is domain."),
				bodyField("allowFileDiscovery", core.FieldBoolean, "Whether the file can be discovered through search."),
				bodyField("expirationTime", core.FieldString, "RFC 3339 expiration time."),
				queryString("emailMessage", "Custom message for the notification email."),
				queryBool("sendNotificationEmail", "Whether to send a notification email."),
				queryBool("transferOwnership", "Whether to transfer ownership to the grantee."),
				queryBool("moveToNewOwnersRoot", "Move the file to the new owner's My Drive root."),
				domainAdmin,
			},
			fields:    permissionFields,
			scopes:    writeScopes,
			allDrives: true,
		},
		{
			name:        "drive_permissions_update",
			description: "Updates a permission with patch semantics",
			method:      http.MethodPatch,
			path:        "/files/{fileId}/permissions/{permissionId}",
			params: []param{
				fileID,
				permissionID,
				enum(bodyField("role", core.FieldString, "The updated role."), PermissionRoles),
				bodyField("expirationTime", core.FieldString, "RFC 3339 expiration time."),
				queryBool("removeExpiration", "Whether to remove the expiration date."),
				queryBool("transferOwnership", "Whether to transfer ownership."),
				domainAdmin,
				expansive,
			},
			fields:     permissionFields,
			idempotent: true,
			scopes:     writeScopes,
			allDrives:  true,
		},
		{
			name:        "drive_permissions_delete",
			description: "Deletes a permission",
			method:      http.MethodDelete,
			path:        "/files/{fileId}/permissions/{permissionId}",
			params:      []param{fileID, permissionID, domainAdmin, expansive},
			scopes:      writeScopes,
			allDrives:   true,
			deleted:     []string{"fileId", "permissionId"},
		},

		{
			name:        "drive_drives_list",
			description: "Lists the user's shared drives",
			method:      http.MethodGet,
			path:        "/drives",
			params:      []param{queryString("q", "Shared drive search query."), domainAdmin},
			collection:  "drives",
			fields:      "nextPageToken,drives(" + sharedDriveField + ")",
			idempotent:  true,
			scopes:      readScopes,
		},
		{
			name:        "drive_drives_get",
			description: "Gets a shared drive's metadata by ID",
			method:      http.MethodGet,
			path:        "/drives/{driveId}",
			params:      []param{driveID, domainAdmin},
			fields:      sharedDriveField,
			idempotent:  true,
			scopes:      readScopes,
		},
		{
			// requestId makes creation idempotent on the provider side.
			name:        "drive_drives_create",
			description: "Creates a shared drive",
			method:      http.MethodPost,
			path:        "/drives",
			params: []param{
				required(queryString("requestId", "Caller-chosen ID that makes the create idempotent.")),
				required(bodyField("name", core.FieldString, "The name of the shared drive.")),
				bodyField("colorRgb", core.FieldString, "The color as an RGB hex string."),
				bodyField("themeId", core.FieldString, "The theme to apply."),
			},
			fields:      sharedDriveField,
			idempotent:  true,
			scopes:      adminScopes,
			requestBody: true,
		},
		{
			name:        "drive_drives_update",
			description: "Updates a shared drive's metadata",
			method:      http.MethodPatch,
			path:        "/drives/{driveId}",
			params: []param{
				driveID,
				bodyField("name", core.FieldString, "The new name."),
				bodyField("colorRgb", core.FieldString, "The color as an RGB hex string."),
				bodyField("themeId", core.FieldString, "The theme to apply."),
				bodyField("restrictions", core.FieldObject, "Restrictions for the shared drive."),
				domainAdmin,
			},
			fields:      sharedDriveField,
			idempotent:  true,
			scopes:      adminScopes,
			requestBody: true,
		},
		{
			name:        "drive_drives_delete",
			description: "Permanently deletes a shared drive",
			method:      http.MethodDelete,
			path:        "/drives/{driveId}",
			params:      []param{driveID, domainAdmin, queryBool("allowItemDeletion", "Also delete items in the shared drive.")},
			scopes:      adminScopes,
			deleted:     []string{"driveId"},
		},
		{
			name:        "drive_drives_hide",
			description: "Hides a shared drive from the default view",
			method:      http.MethodPost,
			path:        "/drives/{driveId}/hide",
			params:      []param{driveID},
			fields:      sharedDriveField,
			idempotent:  true,
			scopes:      adminScopes,
		},
		{
			name:        "drive_drives_unhide",
			description: "Restores a shared drive to the default view",
			method:      http.MethodPost,
			path:        "/drives/{driveId}/unhide",
			params:      []param{driveID},
			fields:      sharedDriveField,
			idempotent:  true,
			scopes:      adminScopes,
		},

		{
			name:        "drive_comments_list",
			description: "Lists a file's comments",
			method:      http.MethodGet,
			path:        "/files/{fileId}/comments",
			params: []param{
				fileID,
				queryBool("includeDeleted", "Include deleted comments."),
				queryString("startModifiedTime", "Minimum modifiedTime, RFC 3339."),
			},
			collection: "comments",
			fields:     "nextPageToken,comments(" + commentFields + ")",
			idempotent: true,
			scopes:     readScopes,
		},
		{
			name:        "drive_comments_get",
			description: "Gets a comment by ID",
			method:      http.MethodGet,
			path:        "/files/{fileId}/comments/{commentId}",
			params:      []param{fileID, commentID, queryBool("includeDeleted", "Return the comment even if deleted.")},
			fields:      commentFields,
			idempotent:  true,
			scopes:      readScopes,
		},
		{
			name:        "drive_comments_create",
			description: "Creates a comment on a file",
			method:      http.MethodPost,
			path:        "/files/{fileId}/comments",
			params: []param{
				fileID,
				required(bodyField("content", core.FieldString, "The plain text content of the comment.")),
				bodyField("anchor", core.FieldString, "A JSON region of the document the comment refers to."),
			},
			fields: commentFields,
			scopes: writeScopes,
		},
		{
			name:        "drive_comments_delete",
			description: "Deletes a comment",
			method:      http.MethodDelete,
			path:        "/files/{fileId}/comments/{commentId}",
			params:      []param{fileID, commentID},
			scopes:      writeScopes,
			deleted:     []string{"fileId", "commentId"},
		},

		{
			name:        "drive_revisions_list",
			description: "Lists a file's revisions",
			method:      http.MethodGet,
			path:        "/files/{fileId}/revisions",
			params:      []param{fileID},
			collection:  "revisions",
			fields:      "nextPageToken,revisions(" + revisionFields + ")",
			idempotent:  true,
			scopes:      readScopes,
		},
		{
			name:        "drive_revisions_get",
			description: "Gets a revision's metadata by ID",
			method:      http.MethodGet,
			path:        "/files/{fileId}/revisions/{revisionId}",
			params:      []param{fileID, revisionID, queryBool("acknowledgeAbuse", "Acknowledge the risk of downloading flagged content.")},
			fields:      revisionFields,
			idempotent:  true,
			scopes:      readScopes,
		},

		{
			name:        "drive_changes_get_start_page_token",
			description: "Gets the starting pageToken for listing future changes",
			method:      http.MethodGet,
			path:        "/changes/startPageToken",
			params:      []param{queryString("driveId", "Shared drive whose changes are tracked.")},
			idempotent:  true,
			scopes:      readScopes,
			allDrives:   true,
		},
		{
			name:        "drive_changes_list",
			description: "Lists changes for a user or shared drive",
			method:      http.MethodGet,
			path:        "/changes",
			params: []param{
				required(queryString(core.PageTokenField, "Token from drive_changes_get_start_page_token or a previous nextPageToken.")),
				queryString("driveId", "Shared drive whose changes are returned."),
				queryBool("includeItemsFromAllDrives", "Include changes from shared drives."),
				queryBool("includeRemoved", "Include removals."),
				queryBool("restrictToMyDrive", "Restrict results to My Drive."),
				queryString("spaces", "Spaces to query."),
			},
			collection: "changes",
			fields:     "nextPageToken,newStartPageToken,changes(" + changeFields + ")",
			idempotent: true,
			scopes:     readScopes,
			allDrives:  true,
		},
	}
}

// Descriptors binds every catalog operation to client.
func Descriptors(client *Client) []core.OperationDescriptor {
	operations := catalog()
	out := make([]core.OperationDescriptor, 0, len(operations))
	for _, op := range operations {
		out = append(out, op.descriptor(client))
	}
	return out
}

// NewRegistry builds the sealed Drive operation registry.
func NewRegistry(client *Client) (*core.Registry, error) {
	return core.NewRegistry(Descriptors(client)...)
}
