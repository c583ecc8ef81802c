/*
The sync package implements the deployment algorithm. It makes the actions in
a package on the platform match the action directories on the user's machine.

Each immediate subdirectory of the deployment root is an action. Deploying an
action goes through the following steps:
1) Build -- The action's build command runs in its directory, so that the
   fingerprinted content matches what will be uploaded.
2) Fingerprint -- The directory's content is hashed into a fingerprint.
3) Compare -- The fingerprint is compared with the one recorded on the remote
   action when it was last uploaded.
4) Upload -- If the remote action is missing or has a different fingerprint,
   the action is archived and uploaded, and the new fingerprint is recorded.

Once every action has been deployed, remote actions in the package that don't
have a local directory are deleted.

Only content changes trigger an upload. Changes to an action's configuration
are picked up the next time its content changes.
*/
package sync
